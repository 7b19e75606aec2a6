package provider

import (
	"context"
	"fmt"

	"github.com/cobliteam/shelver/internal/artifact"
)

// EC2Client is the narrow seam the amazon provider needs from an AWS
// client, grounded on original_source's shelver/provider/amazon.py
// AmazonRegistry (which talked to boto3's ec2 resource directly). No
// pack example repo vendors an AWS SDK, and the provider registry is
// explicitly an external collaborator per spec.md §1/§6, so rather than
// introduce an unrelated third-party SDK dependency for a non-core
// concern, the amazon provider is expressed against this injectable
// interface; a real deployment supplies an implementation backed by
// github.com/aws/aws-sdk-go-v2/service/ec2.
type EC2Client interface {
	DescribeImagesByOwner(ctx context.Context, filters map[string][]string) ([]EC2Image, error)
	DescribeImageByID(ctx context.Context, id string) (EC2Image, error)
}

// EC2Image is the subset of an EC2 AMI description the amazon provider
// needs: its ID and tags.
type EC2Image struct {
	ID   string
	Tags map[string]string
}

const (
	amiNameTag        = "ImageName"
	amiVersionTag     = "ImageVersion"
	amiEnvironmentTag = "ImageEnvironment"
)

type amazonLoader struct {
	client EC2Client
	region string
}

func init() {
	Register("amazon", func(config map[string]any) (Loader, error) {
		client, _ := config["client"].(EC2Client)
		if client == nil {
			return nil, fmt.Errorf("amazon provider requires an EC2Client under config[\"client\"]")
		}
		region, _ := config["region"].(string)
		return &amazonLoader{client: client, region: region}, nil
	})
}

func (a *amazonLoader) toArtifact(img EC2Image) *artifact.Artifact {
	name, hasName := img.Tags[amiNameTag]
	version, hasVersion := img.Tags[amiVersionTag]
	environment := img.Tags[amiEnvironmentTag]

	if hasName && hasVersion {
		return &artifact.Artifact{ID: img.ID, ProviderTag: "amazon", Image: name, Version: version, Environment: environment}
	}
	return &artifact.Artifact{ID: img.ID, ProviderTag: "amazon", Name: img.ID}
}

func (a *amazonLoader) LoadExistingArtifacts(ctx context.Context, region string) ([]*artifact.Artifact, error) {
	if region != "" && region != a.region {
		return nil, nil
	}
	images, err := a.client.DescribeImagesByOwner(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*artifact.Artifact, 0, len(images))
	for _, img := range images {
		out = append(out, a.toArtifact(img))
	}
	return out, nil
}

func (a *amazonLoader) LoadArtifactByID(ctx context.Context, id, region string) (*artifact.Artifact, error) {
	if region != "" && region != a.region {
		return nil, fmt.Errorf("AMI %s is not in region %s", id, a.region)
	}
	img, err := a.client.DescribeImageByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.toArtifact(img), nil
}

package build

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cobliteam/shelver/internal/archive"
	"github.com/cobliteam/shelver/internal/artifact"
	"github.com/cobliteam/shelver/internal/catalog"
	"github.com/cobliteam/shelver/internal/shelvererr"
	"github.com/cobliteam/shelver/pkg/logger"
	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"
)

// Result is the per-build outcome handed back to the Coordinator: the
// raw artifact entries the Watcher collected, keyed exactly as the
// builder tool reported them (spec.md §4.2's artifact DATA fields).
type Result struct {
	Artifacts []map[string]string
}

// Runner assembles a build's template context, renders its template,
// invokes the builder tool, and returns its watcher-collected result,
// implementing spec.md §4.3. It owns one lazily-created per-coordinator
// temporary directory, removed on Close unless KeepTmp is set.
type Runner struct {
	ArchiveCache *archive.Cache
	Engine       TemplateEngine
	BuilderCmd   []string // argv vector, len >= 1 (spec.md §9 open question)
	BaseDir      string
	LogDir       string
	KeepTmp      bool
	ExtraEnv     []string
	Log          *logger.Logger

	tmpDir string
}

// buildTmpDir lazily creates and returns the coordinator-wide scratch
// directory under BaseDir/.shelver/tmp/<random>/, per spec.md §6.
func (r *Runner) buildTmpDir() (string, error) {
	if r.tmpDir != "" {
		return r.tmpDir, nil
	}
	dir := filepath.Join(r.BaseDir, ".shelver", "tmp", uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	r.tmpDir = dir
	return dir, nil
}

// Close removes the runner's temporary directory unless KeepTmp is set.
func (r *Runner) Close() error {
	if r.KeepTmp || r.tmpDir == "" {
		return nil
	}
	return os.RemoveAll(r.tmpDir)
}

// newProducer builds an archive.Producer from an image's archive spec,
// the only implemented type being "git" per spec.md §6.
func newProducer(img *catalog.Image) (archive.Producer, error) {
	spec := img.ArchiveSpec
	typ, _ := spec["type"].(string)
	dir, _ := spec["dir"].(string)
	if typ == "" || dir == "" {
		return nil, shelvererr.NewConfigurationError("image %q: archive spec requires \"type\" and \"dir\"", img.Name)
	}

	switch typ {
	case "git":
		repoName, _ := spec["repo_name"].(string)
		if repoName == "" {
			repoName = img.Name
		}
		revision, _ := spec["revision"].(string)
		if revision == "" {
			revision = "HEAD"
		}
		return &archive.GitProducer{SourceDir: dir, RepoName: repoName, Revision: revision}, nil
	default:
		return nil, shelvererr.NewConfigurationError("image %q: unknown archive type %q", img.Name, typ)
	}
}

// BuildTemplateContext assembles the mapping described in spec.md §4.3
// step 2.
func BuildTemplateContext(img *catalog.Image, version string, baseArtifact *artifact.Artifact, archivePath, archiveSourceDir string, vcFields map[string]string) map[string]any {
	ctx := map[string]any{
		"name":          img.Name,
		"version":       version,
		"description":   img.Description,
		"environment":   img.Environment,
		"instance_type": img.InstanceType,
		"base":          img.Base,
		"provision":     img.ProvisionSpec,
		"base_artifact": nil,
		"archive": map[string]any{
			"source_dir": archiveSourceDir,
			"path":       archivePath,
		},
	}
	if baseArtifact != nil {
		ctx["base_artifact"] = map[string]any{
			"id":      baseArtifact.ID,
			"key":     baseArtifact.Key(),
			"version": baseArtifact.Version,
		}
	}
	for k, v := range vcFields {
		ctx[k] = v
	}
	for k, v := range img.Extra {
		if _, exists := ctx[k]; !exists {
			ctx[k] = v
		}
	}
	return ctx
}

// loadTemplate reads and YAML-decodes the image's template file.
func loadTemplate(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, shelvererr.NewConfigurationError("template %s: %v", path, err)
	}
	return doc, nil
}

// Run executes the full per-build pipeline for (img, version, base),
// returning the Watcher's collected result.
func (r *Runner) Run(ctx context.Context, force <-chan struct{}, img *catalog.Image, version string, base *artifact.Artifact) (*Result, error) {
	buildID := uuid.NewString()
	buildLog := r.Log.WithBuild(img.Name, version, buildID)

	producer, err := newProducer(img)
	if err != nil {
		return nil, err
	}

	archivePath, err := r.ArchiveCache.GetOrBuild(ctx, producer)
	if err != nil {
		return nil, fmt.Errorf("resolving archive for %s: %w", img.Name, err)
	}

	vcFields := map[string]string{}
	if gp, ok := producer.(*archive.GitProducer); ok {
		if commit, err := gp.Commit(); err == nil {
			vcFields["repo_commit"] = commit
			vcFields["repo_rev"] = commit
		}
	}

	sourceDir, _ := img.ArchiveSpec["dir"].(string)
	tmplContext := BuildTemplateContext(img, version, base, archivePath, sourceDir, vcFields)

	doc, err := loadTemplate(img.TemplatePath)
	if err != nil {
		return nil, err
	}
	rendered, err := RenderDocument(r.Engine, doc, tmplContext)
	if err != nil {
		return nil, fmt.Errorf("rendering template for %s: %w", img.Name, err)
	}
	renderedDoc, ok := rendered.(map[string]any)
	if !ok {
		return nil, shelvererr.NewConfigurationError("template for image %q did not render to a mapping", img.Name)
	}

	final, err := PostProcessTemplate(renderedDoc, img)
	if err != nil {
		return nil, err
	}

	tmpDir, err := r.buildTmpDir()
	if err != nil {
		return nil, err
	}
	buildDir := filepath.Join(tmpDir, fmt.Sprintf("%s-%s-%s", img.Name, version, buildID))
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return nil, err
	}

	templatePath := filepath.Join(buildDir, "template.json")
	jsonBytes, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(templatePath, jsonBytes, 0o644); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(r.LogDir, 0o755); err != nil {
		return nil, err
	}
	logPath := filepath.Join(r.LogDir, fmt.Sprintf("%s_%s.log", img.Name, version))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer logFile.Close()

	if len(r.BuilderCmd) == 0 {
		return nil, shelvererr.NewConfigurationError("builder command must be a non-empty argv vector")
	}
	argv := append(append([]string{}, r.BuilderCmd[1:]...), "build", "-machine-readable", templatePath)
	// Plain exec.Command: cancellation is delivered by the Watcher (SIGINT
	// first, SIGKILL on force), not by exec's own kill-on-cancel.
	cmd := exec.Command(r.BuilderCmd[0], argv...)
	cmd.Env = append(os.Environ(), r.ExtraEnv...)
	cmd.Dir = buildDir

	buildLog.Info("build starting")

	watcher := NewWatcher(img.Name, os.Stdout, logFile)
	artifacts, err := watcher.Run(ctx, force, cmd)
	if err != nil {
		buildLog.Error("build failed", err)
		return nil, err
	}

	buildLog.Info("build finished", slog.Int("artifact_count", len(artifacts)))

	return &Result{Artifacts: artifacts}, nil
}

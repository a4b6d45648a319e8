// Package launcher manages the lifecycle of one containerized inference
// service: provisioning an image for it, starting and supervising the
// container, health-checking it until it is ready to answer generation
// requests, and guaranteeing teardown of everything it created.
package launcher

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/modelserving/tgi-container-tests/framework"
	"github.com/modelserving/tgi-container-tests/runtime"
	"github.com/modelserving/tgi-container-tests/servicedef"
)

// buildLabel marks derived images with a run-scoped build id, so an image
// leaked by an aborted run can be traced back to the harness.
const buildLabel = "com.modelserving.tgi-tests.build"

// ImageRef identifies the image a service container runs from. A derived
// image was built by this run solely to embed a local model, owns a tag
// unique to this run, and is removed at teardown; a non-derived image is a
// pre-existing tag that the harness never removes.
type ImageRef struct {
	Tag     string
	Derived bool
	// BuiltID is the image id produced by the build; set only for derived images.
	BuiltID string
}

// ProvisionImage produces the image to run for the given service spec, and
// the model id to pass to the launched process.
//
// If the spec's model reference is not a local directory, it is assumed to be
// a hub model id: the base image is returned unchanged and the model id is
// the reference itself.
//
// If it is a local directory, a derived image is built that layers the model
// files under /data inside the container. The build context is a temporary
// directory, removed whether the build succeeds or fails. A build failure is
// fatal; the tag is scoped to this service+port so no partially built image
// can be picked up by a later run.
func ProvisionImage(
	ctx context.Context,
	rt runtime.ContainerRuntime,
	baseImage string,
	spec servicedef.ServiceSpec,
	containerName string,
	logger framework.Logger,
) (ImageRef, string, error) {
	info, err := os.Stat(spec.Model)
	if err != nil || !info.IsDir() {
		return ImageRef{Tag: baseImage}, spec.Model, nil
	}

	tag := containerName + "-img"
	logger.Printf("Building image derived from %s, tagged %s", baseImage, tag)

	contextDir, err := os.MkdirTemp("", "tgi-tests-build-*")
	if err != nil {
		return ImageRef{}, "", fmt.Errorf("cannot create build context: %w", err)
	}
	defer os.RemoveAll(contextDir)

	if err := os.CopyFS(filepath.Join(contextDir, "model"), os.DirFS(spec.Model)); err != nil {
		return ImageRef{}, "", fmt.Errorf("cannot copy model %s into build context: %w", spec.Model, err)
	}

	containerModelID := path.Join("/data", filepath.ToSlash(spec.Model))
	dockerfile := fmt.Sprintf("FROM %s\nLABEL %s=%s\nCOPY model %s\n",
		baseImage, buildLabel, uuid.NewString(), containerModelID)
	if err := os.WriteFile(filepath.Join(contextDir, "Dockerfile"), []byte(dockerfile), 0644); err != nil {
		return ImageRef{}, "", fmt.Errorf("cannot write Dockerfile: %w", err)
	}

	id, buildLogs, err := rt.BuildImage(ctx, contextDir, "Dockerfile", tag)
	if err != nil {
		return ImageRef{}, "", fmt.Errorf("building image %s: %w", tag, err)
	}
	logger.Printf("Successfully built image %s", id)
	logger.Printf("Build logs: %s", buildLogs)

	return ImageRef{Tag: tag, Derived: true, BuiltID: id}, containerModelID, nil
}

package main

import (
	"fmt"
	"strings"
	"time"

	"context"

	"dagger/prism/internal/dagger"
)

// Build and return directory of go binaries
//
// The sqlite-vec driver pulls in cgo, so binaries are cross-compiled with
// the matching gcc toolchain per architecture rather than CGO_ENABLED=0.
func (p *Prism) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	// define build matrix
	goarches := []string{"amd64", "arm64"}
	compilers := map[string]string{
		"amd64": "gcc",
		"arm64": "aarch64-linux-gnu-gcc",
	}

	// create empty directory to put build artifacts
	outputs := dag.Directory()

	golang := p.goContainer().
		WithExec([]string{"apt-get", "install", "-y", "gcc-aarch64-linux-gnu"}).
		WithEnvVariable("GOOS", "linux")

	for _, goarch := range goarches {
		// create directory for each architecture
		path := fmt.Sprintf("linux/%s/", goarch)

		// build artifact
		build := golang.
			WithEnvVariable("GOARCH", goarch).
			WithEnvVariable("CC", compilers[goarch]).
			WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/prism"})

		// add build to outputs
		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	// return build directory
	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (p *Prism) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/keyframeco/prism/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/keyframeco/prism/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/keyframeco/prism/pkg/utils.Buildtime=%s'", buildtime),
	}

	return p.Build(ctx, strings.Join(ldflags, " "))
}

package builder

import (
	"fmt"
	"strings"

	"github.com/fnforge/fnforge/internal/domain"
)

const sourceCopyDir = "./_source"

// renderOptions tune the generated Dockerfile beyond the build spec.
type renderOptions struct {
	// withSDK installs the fnforge SDK into the image.
	withSDK bool
	// sdkVersion pins the installed SDK; empty installs the latest.
	sdkVersion string
	// copySource copies the fetched source tree into the image workdir.
	copySource bool
	// targetDir is the in-image directory the source is copied to.
	targetDir string
	// defaultBase is the configured base image, used when the spec names
	// neither a base nor a resolved image.
	defaultBase string
}

// renderDockerfile generates the Dockerfile for a function build. The
// section order is fixed: base image, requirement installs, SDK install,
// user commands, source copy, then raw extra lines.
func renderDockerfile(fn *domain.Function, opts renderOptions) (string, error) {
	build := fn.Spec.Build
	base := build.BaseImage
	if base == "" {
		base = fn.Spec.Image
	}
	if base == "" {
		base = opts.defaultBase
	}
	if base == "" {
		return "", fmt.Errorf("function %s has no base image to build from", fn.Key())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", base)

	if len(build.Requirements) > 0 {
		fmt.Fprintf(&b, "RUN python -m pip install %s\n", quoteJoin(build.Requirements))
	}
	if opts.withSDK {
		pkg := "fnforge"
		if opts.sdkVersion != "" {
			pkg = fmt.Sprintf("fnforge==%s", opts.sdkVersion)
		}
		fmt.Fprintf(&b, "RUN python -m pip install %q\n", pkg)
	}
	for _, cmd := range build.Commands {
		fmt.Fprintf(&b, "RUN %s\n", cmd)
	}
	if opts.copySource {
		target := opts.targetDir
		if target == "" {
			target = "/opt/fnforge/source"
		}
		fmt.Fprintf(&b, "COPY %s %s\n", sourceCopyDir, target)
		fmt.Fprintf(&b, "WORKDIR %s\n", target)
	}
	if build.Extra != "" {
		b.WriteString(strings.TrimRight(build.Extra, "\n"))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func quoteJoin(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, fmt.Sprintf("%q", v))
	}
	return strings.Join(quoted, " ")
}

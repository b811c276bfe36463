package provision

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

//go:embed bootstrap.sh
var bootstrapScript string

// buildUserData assembles the cloud-init payload a fresh droplet runs
// on first boot. It exports the worker's identity and the build knobs,
// then appends the embedded bootstrap script verbatim.
func (s *Service) buildUserData(botID uuid.UUID, registrationToken string) string {
	var b strings.Builder

	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "# OpenClaw bot bootstrap for %s\n", botID)
	b.WriteString("set -e\n")
	b.WriteString("# Never enable xtrace in this script: the registration token is\n")
	b.WriteString("# exported below and set -x would copy it into the cloud-init log.\n\n")

	export := func(key, value string) {
		fmt.Fprintf(&b, "export %s=\"%s\"\n", key, value)
	}

	export("BOT_ID", botID.String())
	export("REGISTRATION_TOKEN", registrationToken)
	export("CONTROL_PLANE_URL", s.controlPlaneURL)
	b.WriteString("\n")

	export("CUSTOMIZER_REPO_URL", s.customizer.RepoURL)
	export("CUSTOMIZER_REF", s.customizer.Ref)
	export("CUSTOMIZER_WORKSPACE_DIR", s.customizer.WorkspaceDir)
	export("CUSTOMIZER_AGENT_NAME", s.customizer.AgentName)
	export("CUSTOMIZER_OWNER_NAME", s.customizer.OwnerName)
	export("CUSTOMIZER_SKIP_QMD", strconv.FormatBool(s.customizer.SkipQMD))
	export("CUSTOMIZER_SKIP_CRON", strconv.FormatBool(s.customizer.SkipCron))
	export("CUSTOMIZER_SKIP_GIT", strconv.FormatBool(s.customizer.SkipGit))
	export("CUSTOMIZER_SKIP_HEARTBEAT", strconv.FormatBool(s.customizer.SkipHeartbeat))
	b.WriteString("\n")

	export("TOOLCHAIN_NODE_MAJOR", strconv.Itoa(s.toolchain.NodeMajor))
	export("TOOLCHAIN_INSTALL_PNPM", strconv.FormatBool(s.toolchain.InstallPnpm))
	export("TOOLCHAIN_PNPM_VERSION", s.toolchain.PnpmVersion)
	export("TOOLCHAIN_INSTALL_RUST", strconv.FormatBool(s.toolchain.InstallRust))
	export("TOOLCHAIN_RUST_TOOLCHAIN", s.toolchain.RustToolchain)
	export("TOOLCHAIN_APT_PACKAGES", strings.Join(s.toolchain.AptPackages, " "))
	export("TOOLCHAIN_NPM_PACKAGES", strings.Join(s.toolchain.NpmPackages, " "))
	export("TOOLCHAIN_CARGO_CRATES", strings.Join(s.toolchain.CargoCrates, " "))

	b.WriteString("\n# Start of embedded bootstrap script\n")
	b.WriteString(bootstrapScript)

	return b.String()
}

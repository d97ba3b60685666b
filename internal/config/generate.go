// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// RedactedSecret replaces the OAuth client secret in generated output.
const RedactedSecret = "<redacted>"

// GenerateCUE renders settings as a CUE document accepted by the settings
// schema. The OAuth client secret is redacted when set.
func GenerateCUE(s *Settings) string {
	var sb strings.Builder

	sb.WriteString("// notehub configuration file\n\n")

	fmt.Fprintf(&sb, "container_engine: %q\n", s.ContainerEngine)
	fmt.Fprintf(&sb, "log_level: %q\n", s.LogLevel)
	if s.OTelEndpoint != "" {
		fmt.Fprintf(&sb, "otel_endpoint: %q\n", s.OTelEndpoint)
	}

	sb.WriteString("\nhub: {\n")
	fmt.Fprintf(&sb, "\tip: %q\n", s.Hub.IP)
	fmt.Fprintf(&sb, "\tconnect_ip: %q\n", s.Hub.ConnectIP)
	fmt.Fprintf(&sb, "\tconnect_url: %q\n", s.Hub.ConnectURL)
	fmt.Fprintf(&sb, "\tport: %d\n", s.Hub.Port)
	fmt.Fprintf(&sb, "\tbind_url: %q\n", s.Hub.BindURL)
	fmt.Fprintf(&sb, "\tssl_key: %q\n", s.Hub.SSLKey)
	fmt.Fprintf(&sb, "\tssl_cert: %q\n", s.Hub.SSLCert)
	fmt.Fprintf(&sb, "\tproxy_api_url: %q\n", s.Hub.ProxyAPIURL)
	sb.WriteString("}\n")

	sb.WriteString("\noauth: {\n")
	writeOptional(&sb, "client_id", s.OAuth.ClientID)
	secret := s.OAuth.ClientSecret
	if secret != "" {
		secret = RedactedSecret
	}
	writeOptional(&sb, "client_secret", secret)
	writeOptional(&sb, "callback_url", s.OAuth.CallbackURL)
	writeOptional(&sb, "authorize_url", s.OAuth.AuthorizeURL)
	writeOptional(&sb, "token_url", s.OAuth.TokenURL)
	writeOptional(&sb, "userdata_url", s.OAuth.UserdataURL)
	fmt.Fprintf(&sb, "\tusername_claim: %q\n", s.OAuth.UsernameClaim)
	writeList(&sb, "scopes", s.OAuth.Scopes)
	sb.WriteString("}\n")

	if len(s.Access.AllowedUsers) > 0 || len(s.Access.AdminUsers) > 0 {
		sb.WriteString("\naccess: {\n")
		writeList(&sb, "allowed_users", s.Access.AllowedUsers)
		writeList(&sb, "admin_users", s.Access.AdminUsers)
		sb.WriteString("}\n")
	}

	sb.WriteString("\nworkspace: {\n")
	fmt.Fprintf(&sb, "\tdata_root: %q\n", s.Workspace.DataRoot)
	fmt.Fprintf(&sb, "\ttemplate_root: %q\n", s.Workspace.TemplateRoot)
	writeOptional(&sb, "host_data_root", string(s.Workspace.HostDataRoot))
	fmt.Fprintf(&sb, "\tmount_target: %q\n", s.Workspace.MountTarget)
	fmt.Fprintf(&sb, "\tuid: %d\n", s.Workspace.UID)
	fmt.Fprintf(&sb, "\tgid: %d\n", s.Workspace.GID)
	fmt.Fprintf(&sb, "\tseed_policy: %q\n", s.Workspace.SeedPolicy)
	fmt.Fprintf(&sb, "\tcopy_failure_policy: %q\n", s.Workspace.CopyFailurePolicy)
	sb.WriteString("}\n")

	sb.WriteString("\nsession: {\n")
	fmt.Fprintf(&sb, "\timage: %q\n", s.Session.Image)
	fmt.Fprintf(&sb, "\tname_template: %q\n", s.Session.NameTemplate)
	writeOptional(&sb, "network", string(s.Session.Network))
	fmt.Fprintf(&sb, "\tdefault_url: %q\n", s.Session.DefaultURL)
	fmt.Fprintf(&sb, "\tport: %d\n", s.Session.Port)
	fmt.Fprintf(&sb, "\tpull_policy: %q\n", s.Session.PullPolicy)
	fmt.Fprintf(&sb, "\tremove: %v\n", s.Session.Remove)
	fmt.Fprintf(&sb, "\tuse_internal_ip: %v\n", s.Session.UseInternalIP)
	if len(s.Session.Env) > 0 {
		sb.WriteString("\tenv: {\n")
		for _, k := range slices.Sorted(maps.Keys(s.Session.Env)) {
			fmt.Fprintf(&sb, "\t\t%q: %q\n", k, s.Session.Env[k])
		}
		sb.WriteString("\t}\n")
	}
	writeList(&sb, "command", s.Session.Command)
	sb.WriteString("}\n")

	return sb.String()
}

func writeOptional(sb *strings.Builder, key, value string) {
	if value != "" {
		fmt.Fprintf(sb, "\t%s: %q\n", key, value)
	}
}

func writeList(sb *strings.Builder, key string, values []string) {
	if len(values) == 0 {
		return
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	fmt.Fprintf(sb, "\t%s: [%s]\n", key, strings.Join(quoted, ", "))
}

// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

const (
	HostDataPathMissingId Id = iota + 1
	TemplateMissingId
	WorkspaceNotWritableId
	OwnershipUnsupportedId
	ContainerEngineNotFoundId
	SessionImageMissingId
	ConfigLoadFailedId
	AccessDeniedId
	OAuthNotConfiguredId
)

type (
	Id int

	MarkdownMsg string

	HttpLink string

	Issue struct {
		id       Id          // ID used to lookup the issue
		mdMsg    MarkdownMsg // Markdown text that will be rendered
		docLinks []HttpLink
		extLinks []HttpLink // external links that might be useful for the user
	}
)

var (
	render = glamour.Render

	hostDataPathMissingIssue = &Issue{
		id: HostDataPathMissingId,
		mdMsg: `
# HOST_DATA_PATH is not set!

The hub runs inside a container, so it creates workspaces under its own data root
but the container engine needs the matching path **on the host** to bind-mount them.
No workspace was created.

## Things you can try:
- Export the host-side directory that backs the hub's data root:
~~~
$ export HOST_DATA_PATH=/opt/notehub/data/users
~~~
- Or set ` + "`workspace.host_data_root`" + ` in your config file:
~~~
$ notehub config path
~~~`,
	}

	templateMissingIssue = &Issue{
		id: TemplateMissingId,
		mdMsg: `
# Workspace template not found

New workspaces are seeded from ` + "`<template_root>/default`" + `. That directory does not
exist, so the workspace was created empty. This is not fatal.

## Things you can try:
- Create the template and put starter notebooks in it:
~~~
$ mkdir -p /srv/notehub/workspaces/default
~~~
- Point ` + "`workspace.template_root`" + ` at the directory that holds ` + "`default/`",
	}

	workspaceNotWritableIssue = &Issue{
		id: WorkspaceNotWritableId,
		mdMsg: `
# Could not create the user workspace

The hub failed to create or populate a directory under its data root.

## Things you can try:
- Check that the data root exists and is writable by the hub process
- Check free space on the volume that backs the data root
- Inspect the workspace:
~~~
$ notehub workspace status <username>
~~~`,
	}

	ownershipUnsupportedIssue = &Issue{
		id: OwnershipUnsupportedId,
		mdMsg: `
# Ownership could not be changed

The workspace was created but the hub could not hand it to the notebook user.
The session still starts, but the user may not be able to write to their files.

## Things you can try:
- Run the hub as root, or with CAP_CHOWN
- Check ` + "`workspace.uid`" + ` and ` + "`workspace.gid`" + ` match the user inside the image
- On hosts without POSIX ownership this step is skipped`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# Container engine not found!

Sessions run in containers, but neither Docker nor Podman is available.

## Things you can try:
- Install Docker: https://docs.docker.com/get-docker/
- Install Podman: https://podman.io/getting-started/installation
- Pick the engine explicitly:
~~~
$ export NOTEHUB_CONTAINER_ENGINE=podman
~~~`,
		extLinks: []HttpLink{"https://docs.docker.com/get-docker/", "https://podman.io/getting-started/installation"},
	}

	sessionImageMissingIssue = &Issue{
		id: SessionImageMissingId,
		mdMsg: `
# Session image not available

The pull policy prevented the image from being pulled and it is not present locally.

## Things you can try:
- Pull or build the image on the host
- Set ` + "`session.pull_policy`" + ` to ` + "`ifnotpresent`" + ` or ` + "`always`",
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file could not be parsed or failed schema validation.

## Things you can try:
- Show where the config file is read from:
~~~
$ notehub config path
~~~
- Show the effective configuration:
~~~
$ notehub config show
~~~
- Check the file against the CUE syntax: https://cuelang.org/docs/`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	accessDeniedIssue = &Issue{
		id: AccessDeniedId,
		mdMsg: `
# User not allowed

The user is not in the allow list and is not an admin.

## Things you can try:
- Add the user to ` + "`ALLOWED_USERS`" + ` (comma separated)
- Check the allow list:
~~~
$ notehub access <username>
~~~`,
	}

	oauthNotConfiguredIssue = &Issue{
		id: OAuthNotConfiguredId,
		mdMsg: `
# OAuth provider not configured

Login needs a client ID, a client secret and the provider endpoints.

## Things you can try:
- Set ` + "`OAUTH_CLIENT_ID`" + `, ` + "`OAUTH_CLIENT_SECRET`" + ` and ` + "`OAUTH_CALLBACK_URL`" + `
- Set ` + "`OAUTH_AUTHORIZE_URL`" + `, ` + "`OAUTH_TOKEN_URL`" + ` and ` + "`OAUTH_USERDATA_URL`",
	}

	issues = map[Id]*Issue{
		hostDataPathMissingIssue.Id():     hostDataPathMissingIssue,
		templateMissingIssue.Id():         templateMissingIssue,
		workspaceNotWritableIssue.Id():    workspaceNotWritableIssue,
		ownershipUnsupportedIssue.Id():    ownershipUnsupportedIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		sessionImageMissingIssue.Id():     sessionImageMissingIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		accessDeniedIssue.Id():            accessDeniedIssue,
		oauthNotConfiguredIssue.Id():      oauthNotConfiguredIssue,
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Markdown returns the message followed by a "See also" list when links exist.
func (i *Issue) Markdown() string {
	var sb strings.Builder
	sb.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		sb.WriteString("\n\n## See also:\n")
		for _, link := range slices.Concat(i.docLinks, i.extLinks) {
			sb.WriteString("- <" + string(link) + ">\n")
		}
	}
	return sb.String()
}

// Render renders the issue with the given glamour style ("dark", "light", "notty", ...).
func (i *Issue) Render(stylePath string) (string, error) {
	return render(i.Markdown(), stylePath)
}

// Values returns all catalog issues ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling for the terminal widget host.

# Color System (colors.go)

All colors are Lip Gloss AdaptiveColor values, so light and dark terminals
get matching palettes:

	Accent          - Header, bot bubbles, focus
	Brand           - Title and user highlights
	Success/Danger  - Feedback affordance, error bubbles
	Warning         - Rate limit and voice badges

# Theme (theme.go)

Theme resolves the widget's "light", "dark" or "auto" setting against the
terminal and builds every style the host draws with:

	theme := styles.NewTheme(cfg.Display.Theme)
	bubble := theme.BubbleFor(msg)
*/
package styles

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

// Patch is a partial configuration update. Nil fields are left unchanged.
type Patch struct {
	APIURL *string
	APIKey *string

	UserID   *string
	Username *string
	Email    *string
	DeviceID *string

	AllowedDomains *[]string

	Title          *string
	WelcomeMessage *string
	Theme          *string
	Position       *string
	TypingDelayMS  *int

	VoiceEnabled *bool
	VoiceName    *string

	FeedbackEnabled *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Apply returns a copy of c with the patch applied. c is not modified.
func (c *WidgetConfig) Apply(p Patch) *WidgetConfig {
	next := c.Clone()
	setString(&next.API.URL, p.APIURL)
	setString(&next.API.Key, p.APIKey)
	setString(&next.Identity.UserID, p.UserID)
	setString(&next.Identity.Username, p.Username)
	setString(&next.Identity.Email, p.Email)
	setString(&next.Identity.DeviceID, p.DeviceID)
	if p.AllowedDomains != nil {
		next.Host.AllowedDomains = append([]string(nil), (*p.AllowedDomains)...)
	}
	setString(&next.Display.Title, p.Title)
	setString(&next.Display.WelcomeMessage, p.WelcomeMessage)
	setString(&next.Display.Theme, p.Theme)
	setString(&next.Display.Position, p.Position)
	if p.TypingDelayMS != nil {
		next.Display.TypingDelayMS = *p.TypingDelayMS
	}
	if p.VoiceEnabled != nil {
		next.Voice.Enabled = *p.VoiceEnabled
	}
	setString(&next.Voice.Name, p.VoiceName)
	if p.FeedbackEnabled != nil {
		next.Feedback.Enabled = *p.FeedbackEnabled
	}
	return next
}

// PatchFrom builds a patch carrying every updatable field of c. The config
// watcher uses it to push a reloaded file into a running widget.
func PatchFrom(c *WidgetConfig) Patch {
	domains := append([]string(nil), c.Host.AllowedDomains...)
	return Patch{
		APIURL:          &c.API.URL,
		APIKey:          &c.API.Key,
		UserID:          &c.Identity.UserID,
		Username:        &c.Identity.Username,
		Email:           &c.Identity.Email,
		DeviceID:        &c.Identity.DeviceID,
		AllowedDomains:  &domains,
		Title:           &c.Display.Title,
		WelcomeMessage:  &c.Display.WelcomeMessage,
		Theme:           &c.Display.Theme,
		Position:        &c.Display.Position,
		TypingDelayMS:   &c.Display.TypingDelayMS,
		VoiceEnabled:    &c.Voice.Enabled,
		VoiceName:       &c.Voice.Name,
		FeedbackEnabled: &c.Feedback.Enabled,
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package widget

import (
	"context"
	"fmt"
)

// Intent is a user action coming from a host surface.
type Intent int

const (
	IntentSubmit Intent = iota
	IntentToggle
	IntentOpen
	IntentClose
	IntentVoiceToggle
	IntentClear
	IntentFeedbackUp
	IntentFeedbackDown
)

func (i Intent) String() string {
	switch i {
	case IntentSubmit:
		return "submit"
	case IntentToggle:
		return "toggle"
	case IntentOpen:
		return "open"
	case IntentClose:
		return "close"
	case IntentVoiceToggle:
		return "voice"
	case IntentClear:
		return "clear"
	case IntentFeedbackUp:
		return "feedback_up"
	case IntentFeedbackDown:
		return "feedback_down"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// Event is one intent with its payload. Text is used by IntentSubmit and
// MessageID by the feedback intents.
type Event struct {
	Intent    Intent
	Text      string
	MessageID string
}

// ConfirmClear is the prompt shown before a conversation is cleared.
const ConfirmClear = "Are you sure you want to clear the conversation?"

// Dispatcher routes host events to widget operations, so key bindings and
// buttons share one code path.
type Dispatcher struct {
	w *Widget
	// Confirm, when set, is asked before destructive actions. Returning
	// false cancels the action.
	Confirm func(prompt string) bool
}

// NewDispatcher creates a dispatcher for w.
func NewDispatcher(w *Widget, confirm func(string) bool) *Dispatcher {
	return &Dispatcher{w: w, Confirm: confirm}
}

// Dispatch performs ev. Submit runs the whole turn before returning.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	switch ev.Intent {
	case IntentSubmit:
		_, err := d.w.SendMessage(ctx, ev.Text)
		return err
	case IntentToggle:
		_, err := d.w.ToggleWidget()
		return err
	case IntentOpen:
		return d.w.Open()
	case IntentClose:
		return d.w.Close()
	case IntentVoiceToggle:
		if !d.w.VoiceOn() {
			return d.w.StartVoice()
		}
		return d.w.StopVoice()
	case IntentClear:
		if d.Confirm != nil && !d.Confirm(ConfirmClear) {
			return nil
		}
		return d.w.ClearConversation(ctx)
	case IntentFeedbackUp, IntentFeedbackDown:
		return d.w.SubmitFeedback(ctx, ev.MessageID, ev.Intent == IntentFeedbackUp)
	default:
		return fmt.Errorf("unknown intent %s", ev.Intent)
	}
}

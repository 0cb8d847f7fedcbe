package entities

import (
	"errors"
	"time"
)

// Conversation styles understood by the response generator
const (
	StyleFormal    = "formal"
	StyleCasual    = "casual"
	StyleTechnical = "technical"
)

// Fallbacks applied when neither the user nor configuration says otherwise
const (
	DefaultJurisdiction = "Indian"
	DefaultVoiceID      = "aura-asteria-en"
)

// DefaultUserContext is the context used for users without preferences
func DefaultUserContext() UserContext {
	return UserContext{
		Jurisdiction:      DefaultJurisdiction,
		ConversationStyle: StyleFormal,
		VoiceID:           DefaultVoiceID,
	}
}

// UserPreferences steer generation and synthesis for a user
type UserPreferences struct {
	VoiceID           string `json:"voice_id" bson:"voice_id" mapstructure:"voice_id"`
	Language          string `json:"language" bson:"language" mapstructure:"language"`
	Jurisdiction      string `json:"jurisdiction" bson:"jurisdiction" mapstructure:"jurisdiction"`
	ConversationStyle string `json:"conversation_style" bson:"conversation_style" mapstructure:"conversation_style"`
}

// User represents an account talking to the assistant
type User struct {
	ID          string          `json:"id" bson:"_id" mapstructure:"id"`
	Name        string          `json:"name" bson:"name" mapstructure:"name"`
	Email       string          `json:"email" bson:"email" mapstructure:"email"`
	Preferences UserPreferences `json:"preferences" bson:"preferences" mapstructure:"preferences"`
	CreatedAt   time.Time       `json:"created_at" bson:"created_at" mapstructure:"-"`
}

// UserContext is the read-only projection used to build generation and
// synthesis requests
type UserContext struct {
	Jurisdiction      string
	ConversationStyle string
	VoiceID           string
}

// Context projects the user's preferences, filling blanks from defaults
func (u *User) Context(defaults UserContext) UserContext {
	ctx := UserContext{
		Jurisdiction:      u.Preferences.Jurisdiction,
		ConversationStyle: u.Preferences.ConversationStyle,
		VoiceID:           u.Preferences.VoiceID,
	}
	if ctx.Jurisdiction == "" {
		ctx.Jurisdiction = defaults.Jurisdiction
	}
	if ctx.ConversationStyle == "" {
		ctx.ConversationStyle = defaults.ConversationStyle
	}
	if ctx.VoiceID == "" {
		ctx.VoiceID = defaults.VoiceID
	}
	return ctx
}

// Validate validates the user data
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Name == "" {
		return errors.New("name is required")
	}
	switch u.Preferences.ConversationStyle {
	case "", StyleFormal, StyleCasual, StyleTechnical:
	default:
		return errors.New("conversation_style must be one of: formal, casual, technical")
	}
	return nil
}

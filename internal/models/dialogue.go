package models

// DialogueLine is one source line of a thread together with any stored translation.
type DialogueLine struct {
	ScriptID uint16  `json:"script_id"`
	Thread   string  `json:"thread"`
	Address  uint32  `json:"address"`
	Speaker  *string `json:"speaker,omitempty"`
	Body     string  `json:"body"`
	Variant  *string `json:"variant,omitempty"`

	// Translation is the stored target body, nil when the line is untranslated.
	Translation *string `json:"translation,omitempty"`
}

// Translated reports whether the line already has a stored translation.
func (l *DialogueLine) Translated() bool {
	return l.Translation != nil
}

// Translation is the stored rendering of one dialogue line, keyed by (ScriptID, Address).
type Translation struct {
	ScriptID    uint16  `json:"script_id"`
	Address     uint32  `json:"address"`
	Body        string  `json:"body"`
	VariantBody *string `json:"variant_body,omitempty"`
}

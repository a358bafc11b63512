package offline

// Localizer supplies the user-facing acknowledgement message for writes
// accepted into the queue. The host application provides its own
// implementation to plug into its translation catalog.
type Localizer interface {
	QueuedMessage() string
}

var queuedMessages = map[string]string{
	"en": "Saved locally. Your changes will sync once you are back online.",
	"fr": "Enregistré localement. Vos modifications seront synchronisées dès le retour de la connexion.",
}

type mapLocalizer struct {
	lang string
}

// DefaultLocalizer returns a built-in Localizer for the given language
// tag ("en" or "fr"). Unknown tags fall back to English.
func DefaultLocalizer(lang string) Localizer {
	if _, ok := queuedMessages[lang]; !ok {
		lang = "en"
	}
	return &mapLocalizer{lang: lang}
}

func (l *mapLocalizer) QueuedMessage() string {
	return queuedMessages[l.lang]
}

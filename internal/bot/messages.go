package bot

import (
	"reflect"
	"strings"
)

// Messages are the texts the bot sends. Placeholders in braces are filled
// in when the message is sent: {modes}, {max_size}, {language}, {mode},
// {song}, {url}, {languages}.
type Messages struct {
	Welcome          string `yaml:"welcome"`
	Help             string `yaml:"help"`
	AudioReceived    string `yaml:"audio_received"`
	TextReceived     string `yaml:"text_received"`
	Processing       string `yaml:"processing"`
	Done             string `yaml:"done"`
	Error            string `yaml:"error"`
	AllFailed        string `yaml:"all_failed"`
	NoAudio          string `yaml:"no_audio"`
	FileTooLarge     string `yaml:"file_too_large"`
	NotAudio         string `yaml:"not_audio"`
	UnsupportedAudio string `yaml:"unsupported_format"`
	EmptyTranscript  string `yaml:"empty_transcript"`
	Busy             string `yaml:"busy"`
	RateLimited      string `yaml:"rate_limited"`
	ChooseLanguage   string `yaml:"choose_language"`
	LanguageSet      string `yaml:"language_set"`
	UnknownLanguage  string `yaml:"unknown_language"`
	ChooseMode       string `yaml:"choose_mode"`
	ModeSet          string `yaml:"mode_set"`
	ModeCleared      string `yaml:"mode_cleared"`
	UnknownMode      string `yaml:"unknown_mode"`
	AskEveryTime     string `yaml:"ask_every_time"`
	SongFound        string `yaml:"song_found"`
	SongNotFound     string `yaml:"song_not_found"`
}

func defaultMessages() Messages {
	return Messages{
		Welcome: `🎧 Welcome to Omni-Hear!

🎤 Send me a voice message, an audio file or a piece of text.

What I can do:
{modes}

🌐 /lang picks the output language
⚙️ /mode sets a default mode`,
		Help: `📖 How to use

1️⃣ Send a voice message, an audio file or text
2️⃣ Pick a processing mode from the menu
3️⃣ Wait for the result

Modes:
{modes}

💡 Maximum file size: {max_size}`,
		AudioReceived:    "🎵 Got it! Choose what to do with it:",
		TextReceived:     "📝 Got your text. Choose what to do with it:",
		Processing:       "⏳ Processing...",
		Done:             "✅ Done",
		Error:            "❌ Something went wrong. Please try again.",
		AllFailed:        "❌ Every service failed to process this. Please try again later.",
		NoAudio:          "⚠️ Please send an audio file first.",
		FileTooLarge:     "⚠️ The file is larger than {max_size}.",
		NotAudio:         "⚠️ Please send an audio file or a voice message.",
		UnsupportedAudio: "⚠️ This audio format is not supported.",
		EmptyTranscript:  "🤷 No speech was recognized in this recording.",
		Busy:             "⏳ I'm busy right now. Please try again in a minute.",
		RateLimited:      "🐢 Too many requests. Please slow down a little.",
		ChooseLanguage:   "🌐 Choose the output language:",
		LanguageSet:      "🌐 Output language: {language}",
		UnknownLanguage:  "⚠️ Unknown language. Available: {languages}",
		ChooseMode:       "⚙️ Choose a default mode. New audio will be processed right away:",
		ModeSet:          "✅ Default mode: {mode}",
		ModeCleared:      "✅ I'll ask you every time.",
		UnknownMode:      "⚠️ Unknown mode. Available: {modes}",
		AskEveryTime:     "❓ Ask every time",
		SongFound:        "🎵 {song}\n{url}",
		SongNotFound:     "🔎 No matching song found.",
	}
}

// withDefaults fills every empty message from the built-in set.
func (m Messages) withDefaults() Messages {
	def := reflect.ValueOf(defaultMessages())
	v := reflect.ValueOf(&m).Elem()
	for i := range v.NumField() {
		if f := v.Field(i); f.String() == "" {
			f.SetString(def.Field(i).String())
		}
	}
	return m
}

// fill replaces {key} placeholders. kv alternates keys and values.
func fill(s string, kv ...string) string {
	if len(kv) == 0 {
		return s
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

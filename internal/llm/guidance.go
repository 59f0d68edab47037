package llm

import "fmt"

// FallbackGuidance is used for speech providers without a dedicated guide.
const FallbackGuidance = `Format your response as a natural dialogue between characters. Each line should be in the format "Speaker: Dialogue text". Keep responses conversational and engaging.`

const (
	elevenLabsGuide = `ElevenLabs reads punctuation literally. Use ellipses for hesitation and dashes for interruptions.
Audio tags in square brackets such as [laughs], [whispers] or [sighs] are performed, not spoken.
Spell out numbers, abbreviations and symbols the way they should be said.`

	geminiGuide = `Gemini follows natural-language direction. Keep stage directions out of the spoken text.
Write contractions and filler words where a real speaker would use them.
Short lines with clear turn-taking give the best multi-speaker results.`

	orpheusGuide = `Orpheus supports the emotive tags <laugh>, <chuckle>, <sigh>, <cough>, <sniffle>, <groan>, <yawn> and <gasp>.
Use them sparingly and only where the sound fits the line.`

	playAIGuide = `PlayAI voices handle long, flowing sentences well. Avoid markup and emoji.
Keep each speaker's lines distinct in tone so the voices stay recognisable.`

	diaGuide = `Dia performs nonverbal cues written in parentheses, such as (laughs), (clears throat) or (sighs).
Keep the dialogue between two speakers and alternate turns.`

	f5Guide = `F5 clones a reference voice. Write plain sentences without tags; expression comes from wording alone.`

	kokoroGuide = `Kokoro is a lightweight voice. Keep sentences short, avoid tags and spell out numbers.`

	chatterboxGuide = `Chatterbox conveys emotion through wording and punctuation. Exclamation marks and questions are performed strongly.`

	openAIGuide = `OpenAI voices follow punctuation closely. Use commas for short pauses and full stops between ideas.`
)

var guides = map[string]string{
	"elevenlabs":        elevenLabsGuide,
	"gemini":            geminiGuide,
	"orpheus-tts":       orpheusGuide,
	"playai-tts-v3":     playAIGuide,
	"playai-tts-dialog": playAIGuide,
	"dia-tts":           diaGuide,
	"dia-tts-clone":     diaGuide,
	"f5-tts":            f5Guide,
	"kokoro-tts":        kokoroGuide,
	"chatterbox-tts":    chatterboxGuide,
	"chatterboxhd-tts":  chatterboxGuide,
	"openai":            openAIGuide,
}

// Guidance returns the writing guide for a speech provider or fal.ai model.
func Guidance(tts string) string {
	if g, ok := guides[tts]; ok {
		return g
	}
	return FallbackGuidance
}

// SystemPrompt combines the persona prompt with the speech guide.
func SystemPrompt(persona, tts string) string {
	ttsContext := fmt.Sprintf("You are generating dialogue that will be converted to speech using %s TTS. Follow the guidelines below for optimal audio output.\n\n", tts)
	return persona + "\n\n" + ttsContext + Guidance(tts)
}

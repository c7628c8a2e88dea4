package dialog

import "anonchat/internal/llm"

// Button labels the transport renders and echoes back as event text.
const (
	BtnStartChat = "🔥 Start chat"
	BtnAbout     = "ℹ️ About"
	BtnSupport   = "🆘 Support"
	BtnNext      = "➡️ Next partner"
	BtnEnd       = "❌ End dialog"
)

const cmdStart = "/start"

const (
	welcomeText = "✨ Anonymous chat\n\nTap \"🔥 Start chat\" and I will find you a partner in a couple of seconds.\n\nPrivate, easy, no sign-up."

	aboutText = "ℹ️ About\n\nAn anonymous chat for free-form conversation.\n\n• no sign-up\n• quick start\n• private format"

	supportText = "🆘 Support\n\nQuestions, bugs or ideas? Message the operators and we will help."

	searchingText = "🔎 Looking for a partner..."

	foundText = "💬 Partner found.\n\nSend the first message to get started."

	endedText = "❌ Dialog finished.\n\nTaking you back to the menu."

	sessionGoneText = "The session has ended. Tap \"🔥 Start chat\" to open a new one."

	slowDownText = "⏳ Too fast! Wait a couple of seconds and continue."

	fallbackText = "👋 Tap \"🔥 Start chat\" and I will find you a partner right now."
)

// MainMenuKeyboard is shown outside of a dialog.
func MainMenuKeyboard() [][]string {
	return [][]string{
		{BtnStartChat},
		{BtnAbout, BtnSupport},
	}
}

// ChatKeyboard is shown while a dialog is active.
func ChatKeyboard() [][]string {
	return [][]string{
		{BtnNext, BtnEnd},
	}
}

// noticeFor maps a gateway failure to exactly one user-visible notice.
func noticeFor(err error) string {
	switch llm.Classify(err) {
	case llm.KindRateLimited:
		return "⚠️ The service is overloaded right now. Try again in a minute."
	case llm.KindModelNotFound:
		return "⚙️ The model is unavailable right now. Please try again later."
	case llm.KindAuth:
		return "🔑 There is a configuration problem on our side. Please try again later."
	case llm.KindTimeout:
		return "⌛ The reply is taking too long. Try again in a few seconds."
	case llm.KindProxyUnsupported:
		return "🧩 Connection settings problem on our side. Please try again later."
	default:
		return "💤 Your partner is a little busy. Let's try again in a few seconds."
	}
}

package telegram

// ReplyKeyboard mirrors Telegram's reply_markup for custom keyboards.
type ReplyKeyboard struct {
	Keyboard        [][]Button `json:"keyboard"`
	ResizeKeyboard  bool       `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard bool       `json:"one_time_keyboard,omitempty"`
}

type Button struct {
	Text           string `json:"text"`
	RequestContact bool   `json:"request_contact,omitempty"`
}

type InlineKeyboard struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

type InlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

func row(texts ...string) []Button {
	r := make([]Button, len(texts))
	for i, t := range texts {
		r[i] = Button{Text: t}
	}
	return r
}

// GuestKeyboard asks a not-yet-registered user to share their phone number.
func GuestKeyboard() ReplyKeyboard {
	return ReplyKeyboard{
		Keyboard: [][]Button{
			{{Text: "📞 Поділитись номером", RequestContact: true}},
			row("💰 Ціни", "🪄 AI Оцінка вартості"),
			row("📸 Наші роботи", "📍 Локація"),
			row("📅 Графік", "📞 Контактний телефон"),
			row("🆘 Допомога"),
		},
		OneTimeKeyboard: true,
		ResizeKeyboard:  true,
	}
}

// MemberKeyboard is the standard menu for registered customers.
func MemberKeyboard() ReplyKeyboard {
	return ReplyKeyboard{
		Keyboard: [][]Button{
			row("💰 Ціни", "🪄 AI Оцінка вартості"),
			row("📸 Наші роботи", "📍 Локація"),
			row("📅 Графік", "📞 Контактний телефон"),
			row("🆘 Допомога"),
		},
		ResizeKeyboard: true,
	}
}

func AdminKeyboard() ReplyKeyboard {
	return ReplyKeyboard{
		Keyboard: [][]Button{
			row("📊 Статистика"),
			row("🧮 AI Калькулятор вартості"),
			row("📢 Розсилка"),
		},
		ResizeKeyboard: true,
	}
}

// Literal button texts the webhook router matches against.
const (
	ButtonPickupYes = "✅ Так, забрав(ла)"
	ButtonPickupNo  = "❌ Ще ні"
)

// PickupKeyboard is the two-button "did you pick it up?" control.
func PickupKeyboard() ReplyKeyboard {
	return ReplyKeyboard{
		Keyboard: [][]Button{
			row(ButtonPickupYes),
			row(ButtonPickupNo),
		},
		ResizeKeyboard: true,
	}
}

// RatingKeyboard offers a one-tap 1..5 score.
func RatingKeyboard() ReplyKeyboard {
	return ReplyKeyboard{
		Keyboard:        [][]Button{row("1", "2", "3", "4", "5")},
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}

func LinkButton(text, url string) InlineKeyboard {
	return InlineKeyboard{InlineKeyboard: [][]InlineButton{{{Text: text, URL: url}}}}
}

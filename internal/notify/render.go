// Package notify delivers alert notifications: rendered Telegram messages,
// JSON events on a Kafka topic, and log lines.
package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
	"github.com/Althuwaynee/iraqairquality/internal/alert"
	"github.com/Althuwaynee/iraqairquality/internal/subscriber"
)

var levelText = map[subscriber.Language]map[airquality.Level]string{
	subscriber.LanguageArabic: {
		airquality.LevelGood:                        "✅ جودة الهواء جيدة.\n🌳 يمكنك الخروج بأمان.",
		airquality.LevelModerate:                    "😐 جودة الهواء متوسطة.\nالخروج ممكن مع الحذر.",
		airquality.LevelUnhealthyForSensitiveGroups: "⚠️ غير صحي للفئات الحساسة.\n👶 يُفضّل البقاء في الداخل.",
		airquality.LevelUnhealthy:                   "🚨 جودة الهواء غير صحية.\n😷 ارتدِ كمامة.",
		airquality.LevelVeryUnhealthy:               "☠️ سيئة جداً.\n🏠 ابقَ في الداخل.",
		airquality.LevelHazardous:                   "🌪️ حالة خطيرة!\n🚫 تجنب الخروج تماماً.",
	},
	subscriber.LanguageEnglish: {
		airquality.LevelGood:                        "✅ Air quality is good.\n🌳 You can go outside safely.",
		airquality.LevelModerate:                    "😐 Air quality is moderate.",
		airquality.LevelUnhealthyForSensitiveGroups: "⚠️ Unhealthy for sensitive groups.",
		airquality.LevelUnhealthy:                   "🚨 Unhealthy air quality.\n😷 Wear a mask.",
		airquality.LevelVeryUnhealthy:               "☠️ Very unhealthy.\n🏠 Stay indoors.",
		airquality.LevelHazardous:                   "🌪️ Hazardous conditions!\n🚫 Avoid going outside.",
	},
}

var levelEmoji = map[airquality.Level]string{
	airquality.LevelGood:                        "✅",
	airquality.LevelModerate:                    "😐",
	airquality.LevelUnhealthyForSensitiveGroups: "⚠️",
	airquality.LevelUnhealthy:                   "🚨",
	airquality.LevelVeryUnhealthy:               "☠️",
	airquality.LevelHazardous:                   "🌪️",
}

// LevelEmoji returns the emoji shown for a level.
func LevelEmoji(l airquality.Level) string {
	if e, ok := levelEmoji[l]; ok {
		return e
	}
	return "📊"
}

// LevelText returns the advice text for a level. Unknown languages fall
// back to Arabic and unknown levels to the level name.
func LevelText(lang subscriber.Language, l airquality.Level) string {
	texts, ok := levelText[lang]
	if !ok {
		texts = levelText[subscriber.DefaultLanguage]
	}
	if t, ok := texts[l]; ok {
		return t
	}
	return string(l)
}

// Render formats a notification as Telegram HTML in the subscriber's language.
func Render(n alert.Notification) string {
	var b strings.Builder
	name := html.EscapeString(n.DistrictName)
	if name == "" {
		name = html.EscapeString(n.DistrictID)
	}

	pm10 := "-"
	if n.PM10 != nil {
		pm10 = fmt.Sprintf("%.0f", *n.PM10)
	}

	if n.Language == subscriber.LanguageEnglish {
		fmt.Fprintf(&b, "%s <b>Air Quality Alert</b>\n", LevelEmoji(n.Level))
		fmt.Fprintf(&b, "📍 <b>%s</b>\n\n", name)
		fmt.Fprintf(&b, "📊 Air Quality Index (AQI): <b>%d</b>\n", n.AQI)
		fmt.Fprintf(&b, "🏭 PM10: <b>%s µg/m³</b>\n", pm10)
		fmt.Fprintf(&b, "📈 Level: <b>%s</b>\n\n", n.Level)
		b.WriteString(LevelText(n.Language, n.Level))
		if n.DustStorm {
			b.WriteString("\n\n🌪️ Dust storm alert: YES")
		}
		return b.String()
	}

	fmt.Fprintf(&b, "%s <b>تنبيه جودة الهواء</b>\n", LevelEmoji(n.Level))
	fmt.Fprintf(&b, "📍 <b>%s</b>\n\n", name)
	fmt.Fprintf(&b, "📊 مؤشر جودة الهواء (AQI): <b>%d</b>\n", n.AQI)
	fmt.Fprintf(&b, "🏭 PM10: <b>%s µg/m³</b>\n", pm10)
	fmt.Fprintf(&b, "📈 المستوى: <b>%s</b>\n\n", n.Level)
	b.WriteString(LevelText(subscriber.LanguageArabic, n.Level))
	if n.DustStorm {
		b.WriteString("\n\n🌪️ تنبيه عاصفة غبارية: نعم")
	}
	return b.String()
}

package bot

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// maxEmojiSize is Discord's upload limit for emojis.
const maxEmojiSize = 256 * 1024

const twemojiBase = "https://cdn.jsdelivr.net/gh/twitter/twemoji@14.0.2/assets/72x72/"

var (
	customEmoji = regexp.MustCompile(`^<(a?):(\w{2,32}):(\d{17,20})>$`)
	emojiName   = regexp.MustCompile(`^\w{2,32}$`)
)

// userError is an error whose text is shown to the user as is.
type userError string

func (e userError) Error() string { return string(e) }

const (
	errEmojiName    userError = "Emoji name must be alphanumeric."
	errEmojiNoName  userError = "You must provide a name for the emoji."
	errEmojiInvalid userError = "You must provide a valid emoji."
	errEmojiLarge   userError = "That image is too large to be an emoji."
)

// Emoji is a custom guild emoji parsed from message markup.
type Emoji struct {
	Name     string
	ID       string
	Animated bool
}

// ParseEmoji parses <:name:id> and <a:name:id>.
func ParseEmoji(s string) (Emoji, bool) {
	m := customEmoji.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Emoji{}, false
	}
	return Emoji{Animated: m[1] == "a", Name: m[2], ID: m[3]}, true
}

// URL is the CDN image of the emoji.
func (e Emoji) URL() string {
	ext := "png"
	if e.Animated {
		ext = "gif"
	}
	return fmt.Sprintf("https://cdn.discordapp.com/emojis/%s.%s", e.ID, ext)
}

// Markup renders the emoji for a message.
func (e Emoji) Markup() string {
	a := ""
	if e.Animated {
		a = "a"
	}
	return fmt.Sprintf("<%s:%s:%s>", a, e.Name, e.ID)
}

// TwemojiURL returns the image of a unicode emoji. Variation selectors are
// dropped unless the emoji is a joined sequence.
func TwemojiURL(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	zwj := strings.ContainsRune(s, 0x200D)
	var points []string
	for _, r := range s {
		if r < 0x80 && !(r >= '0' && r <= '9') && r != '#' && r != '*' {
			return "", false
		}
		if r == 0xFE0F && !zwj {
			continue
		}
		points = append(points, fmt.Sprintf("%x", r))
	}
	if len(points) == 0 || len(points) > 10 {
		return "", false
	}
	return twemojiBase + strings.Join(points, "-") + ".png", true
}

// stealTarget works out the image and the name of an emoji to add. The
// source is either custom emoji markup or an image URL.
func stealTarget(source, name string) (imageURL, finalName string, err error) {
	if name != "" && !emojiName.MatchString(name) {
		return "", "", errEmojiName
	}
	if e, ok := ParseEmoji(source); ok {
		if name == "" {
			name = e.Name
		}
		return e.URL(), name, nil
	}
	source = strings.TrimSpace(source)
	if !strings.HasPrefix(source, "https://") && !strings.HasPrefix(source, "http://") {
		return "", "", errEmojiInvalid
	}
	if name == "" {
		return "", "", errEmojiNoName
	}
	return source, name, nil
}

// imageDataURI encodes an emoji upload.
func imageDataURI(data []byte) (string, error) {
	if len(data) > maxEmojiSize {
		return "", errEmojiLarge
	}
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return "", errEmojiInvalid
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

package render

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/Tsauerd/vibropress-assistant-front/internal/api"
)

// Photo is a decoded document image ready to be uploaded to the chat
// surface (the web widget's lightbox equivalent).
type Photo struct {
	Name    string
	Data    []byte
	Caption string
}

// BuildImages decodes inline base64 attachments. Entries without data or
// with undecodable data are dropped, never surfaced as errors.
func BuildImages(images []api.ImageAttachment) []Photo {
	var out []Photo
	for i, img := range images {
		raw := strings.TrimSpace(img.ImageData)
		if raw == "" {
			continue
		}
		// Some backend builds prepend the full data-URI header.
		if idx := strings.Index(raw, "base64,"); idx >= 0 {
			raw = raw[idx+len("base64,"):]
		}
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(raw)
		}
		if err != nil || len(data) == 0 {
			continue
		}

		caption := img.Description
		if caption == "" {
			caption = fmt.Sprintf("Изображение %d", i+1)
		}
		if img.PageNumber > 0 {
			caption += fmt.Sprintf(" (стр. %d)", img.PageNumber)
		}
		out = append(out, Photo{
			Name:    fmt.Sprintf("image_%d.%s", i+1, extFromMime(img.MimeType)),
			Data:    data,
			Caption: caption,
		})
	}
	return out
}

func extFromMime(mime string) string {
	switch mime {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

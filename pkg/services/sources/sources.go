// Package sources turns agent metadata into references shown under an answer.
package sources

import (
	"fmt"
	"html"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/liut/agrochat/pkg/models/aigc"
)

const (
	sourceDocument = "document"
	sourceYoutube  = "youtube"

	headTitle  = "<b>Информация взята из:</b>\n"
	headDocs   = "<b>- Документация</b>"
	headVideos = "<b>- YouTube</b>"
)

// Document is a manual with the pages the answer was built from
type Document struct {
	Name  string   `json:"name"`
	Pages []string `json:"pages"`
}

// Refs are the references of one answer
type Refs struct {
	Images    []string   `json:"images,omitempty"`
	Documents []Document `json:"documents,omitempty"`
	Videos    []string   `json:"videos,omitempty"`
}

// Empty reports whether there is nothing to cite, images alone are not cited
func (z Refs) Empty() bool {
	return len(z.Documents) == 0 && len(z.Videos) == 0
}

// Collect walks tool messages in order
func Collect(md aigc.Metadata) (refs Refs) {
	seenImg := make(map[string]bool)
	docIdx := make(map[string]int)
	pageSeen := make(map[string]map[string]bool)

	for _, tm := range md.ToolMessages {
		if len(tm.Image) > 0 && !seenImg[tm.Image] {
			seenImg[tm.Image] = true
			refs.Images = append(refs.Images, tm.Image)
		}

		switch {
		case strings.Contains(tm.Source, sourceYoutube):
			if v := videoRef(tm); len(v) > 0 {
				refs.Videos = append(refs.Videos, v)
			}
		case tm.Source == sourceDocument:
			// documents announced on their own carry nothing to cite yet
		default:
			name, page, ok := parsePageKey(tm.Image)
			if !ok {
				continue
			}
			i, found := docIdx[name]
			if !found {
				i = len(refs.Documents)
				docIdx[name] = i
				pageSeen[name] = make(map[string]bool)
				refs.Documents = append(refs.Documents, Document{Name: name})
			}
			if !pageSeen[name][page] {
				pageSeen[name][page] = true
				refs.Documents[i].Pages = append(refs.Documents[i].Pages, page)
			}
		}
	}
	for i := range refs.Documents {
		sortPages(refs.Documents[i].Pages)
	}
	return
}

// parsePageKey reads ".../<doc>/page_<N>.png"
func parsePageKey(key string) (doc, page string, ok bool) {
	if len(key) == 0 {
		return
	}
	parts := strings.Split(key, "/")
	if len(parts) < 2 {
		return
	}
	doc = strings.TrimSpace(parts[len(parts)-2])
	page = strings.TrimSpace(parts[len(parts)-1])
	page = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(page, "page_", ""), ".png", ""))
	ok = len(doc) > 0 && len(page) > 0
	return
}

// sortPages puts numeric pages first in numeric order, then the rest by text
func sortPages(pages []string) {
	sort.SliceStable(pages, func(i, j int) bool {
		a, errA := strconv.Atoi(pages[i])
		b, errB := strconv.Atoi(pages[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return pages[i] < pages[j]
	})
}

func videoRef(tm aigc.ToolMessage) string {
	if len(tm.VideoName) == 0 {
		return ""
	}
	s := "«" + tm.VideoName + "»"
	if len(tm.VideoDate) > 0 {
		s += ", дата: " + FormatDate(tm.VideoDate)
	}
	if secs, ok := durationSecs(tm.VideoLen); ok {
		s += ", длительность: " + FormatDuration(secs)
	}
	return s
}

func durationSecs(v any) (int, bool) {
	s, err := cast.ToStringE(v)
	if err != nil || len(s) == 0 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatDate converts YYYYMMDD to DD.MM.YYYY, anything else is returned as is
func FormatDate(s string) string {
	if len(s) != 8 {
		return s
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return s
		}
	}
	return s[6:8] + "." + s[4:6] + "." + s[0:4]
}

// FormatDuration renders seconds like "1ч 8мин 45сек"
func FormatDuration(secs int) string {
	return fmt.Sprintf("%dч %dмин %dсек", secs/3600, secs%3600/60, secs%60)
}

// HTML renders references for Telegram, empty when there is nothing to cite
func (z Refs) HTML() string {
	if z.Empty() {
		return ""
	}
	lines := []string{headTitle}
	if len(z.Documents) > 0 {
		lines = append(lines, headDocs)
		for _, d := range z.Documents {
			lines = append(lines, fmt.Sprintf("-> «%s», стр. %s",
				html.EscapeString(d.Name), html.EscapeString(strings.Join(d.Pages, ", "))))
		}
		lines = append(lines, "")
	}
	if len(z.Videos) > 0 {
		lines = append(lines, headVideos)
		for _, v := range z.Videos {
			lines = append(lines, "-> "+html.EscapeString(v))
		}
		lines = append(lines, "")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ImageName is a file name for an object key
func ImageName(key string) string {
	return path.Base(key)
}

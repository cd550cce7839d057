package bots

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"

	"botchat/model"
)

// OtherLetter collects names that start with neither a Latin letter nor a
// Chinese ideograph. It always sorts last.
const OtherLetter = "#"

// Section is one alphabetic group of the bot list.
type Section struct {
	Letter string      `json:"letter"`
	Bots   []model.Bot `json:"bots"`
}

var firstLetterArgs = func() pinyin.Args {
	a := pinyin.NewArgs()
	a.Style = pinyin.FirstLetter
	return a
}()

// FirstLetter returns the section letter for a bot name: the uppercase
// initial for ASCII letters, the pinyin initial for a leading Chinese
// character and OtherLetter for anything else.
func FirstLetter(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return OtherLetter
	}
	r := []rune(name)[0]

	switch {
	case r < unicode.MaxASCII && unicode.IsLetter(r):
		return strings.ToUpper(string(r))
	case unicode.Is(unicode.Han, r):
		py := pinyin.Pinyin(string(r), firstLetterArgs)
		if len(py) == 0 || len(py[0]) == 0 || py[0][0] == "" {
			return OtherLetter
		}
		return strings.ToUpper(py[0][0][:1])
	default:
		return OtherLetter
	}
}

// group builds sections in bot order, sorted by letter.
func group(list []model.Bot) []Section {
	index := make(map[string]int)
	var sections []Section
	for _, b := range list {
		letter := FirstLetter(b.Name)
		i, ok := index[letter]
		if !ok {
			i = len(sections)
			index[letter] = i
			sections = append(sections, Section{Letter: letter})
		}
		sections[i].Bots = append(sections[i].Bots, b.Clone())
	}

	sort.SliceStable(sections, func(i, j int) bool {
		a, b := sections[i].Letter, sections[j].Letter
		if a == OtherLetter || b == OtherLetter {
			return b == OtherLetter && a != OtherLetter
		}
		return a < b
	})
	return sections
}

package criteria

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnknownKind reports a subscription kind the engine does not implement.
// Workers treat it as an immediate terminal close.
var ErrUnknownKind = errors.New("criteria: unknown kind")

// Criteria evaluates a serialized message. Implementations are stateless and
// safe for use by a single worker goroutine.
type Criteria interface {
	Match(payload []byte) bool
}

// New builds the evaluator for a subscription kind and its content string.
func New(kind, content string) (Criteria, error) {
	switch kind {
	case "track":
		return newTrack(content)
	case "follow":
		return newFollow(content), nil
	case "location":
		return newLocation(content)
	case "firehose":
		return matchFunc(func([]byte) bool { return true }), nil
	case "gardenhose":
		return sample{n: 10, intn: rand.Intn}, nil
	case "spritzer":
		return sample{n: 100, intn: rand.Intn}, nil
	case "links":
		return matchFunc(func(p []byte) bool { return gjson.GetBytes(p, "has_link").Bool() }), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

type matchFunc func(payload []byte) bool

func (f matchFunc) Match(payload []byte) bool { return f(payload) }

// track matches when, for some OR-group, every word of the group appears as
// a token of the message text. Content is a comma-separated list of groups;
// each group is whitespace-tokenized: "streamapi,streaming api" matches
// either the single word "streamapi" or both "streaming" and "api".
type track struct {
	groups [][]string
}

func newTrack(content string) (track, error) {
	var groups [][]string
	for _, part := range strings.Split(content, ",") {
		words := strings.Fields(strings.ToLower(part))
		if len(words) == 0 {
			continue
		}
		groups = append(groups, words)
	}
	if len(groups) == 0 {
		return track{}, errors.New("criteria: track needs at least one word group")
	}
	return track{groups: groups}, nil
}

func (t track) Match(payload []byte) bool {
	text := strings.ToLower(gjson.GetBytes(payload, "text").String())
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(text) {
		tokens[tok] = struct{}{}
	}
	for _, group := range t.groups {
		all := true
		for _, w := range group {
			if _, ok := tokens[w]; !ok {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// follow matches when the message author, or whoever retweeted it, is in the
// comma-separated name list. Names, not user ids.
type follow struct {
	people map[string]struct{}
}

func newFollow(content string) follow {
	people := make(map[string]struct{})
	for _, name := range strings.Split(content, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			people[name] = struct{}{}
		}
	}
	return follow{people: people}
}

func (f follow) Match(payload []byte) bool {
	author := strings.ToLower(gjson.GetBytes(payload, "author").String())
	if _, ok := f.people[author]; ok {
		return true
	}
	rt := strings.ToLower(gjson.GetBytes(payload, "retweeted_by").String())
	if rt == "" {
		return false
	}
	_, ok := f.people[rt]
	return ok
}

// box is (minLon, maxLon, minLat, maxLat), bounds inclusive.
type box [4]float64

// location matches geo-tagged messages falling inside any box. Content is a
// flat comma-separated float list grouped into 4-tuples; a trailing partial
// tuple is ignored.
type location struct {
	boxes []box
}

func newLocation(content string) (location, error) {
	parts := strings.Split(content, ",")
	var boxes []box
	for i := 0; i+3 < len(parts); i += 4 {
		var b box
		for j := 0; j < 4; j++ {
			f, err := strconv.ParseFloat(strings.TrimSpace(parts[i+j]), 64)
			if err != nil {
				return location{}, fmt.Errorf("criteria: bad location bound %q: %w", parts[i+j], err)
			}
			b[j] = f
		}
		boxes = append(boxes, b)
	}
	if len(boxes) == 0 {
		return location{}, errors.New("criteria: location needs at least one box")
	}
	return location{boxes: boxes}, nil
}

func (l location) Match(payload []byte) bool {
	geo := gjson.GetBytes(payload, "geo")
	if !geo.Exists() || geo.Type == gjson.Null {
		return false
	}
	lonVal := geo.Get("lon")
	latVal := geo.Get("lat")
	// a geo object without coordinates is not a locatable message
	if !lonVal.Exists() || !latVal.Exists() {
		return false
	}
	lon := lonVal.Float()
	lat := latVal.Float()
	for _, b := range l.boxes {
		if b[0] <= lon && lon <= b[1] && b[2] <= lat && lat <= b[3] {
			return true
		}
	}
	return false
}

// sample matches 1 in n messages, independently per message.
type sample struct {
	n    int
	intn func(int) int
}

func (s sample) Match([]byte) bool { return s.intn(s.n) == 0 }

// internal/browser/humanoid/keyboard.go
package humanoid

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
)

// keyboardNeighbors maps keys to their QWERTY neighbours.
var keyboardNeighbors = map[rune]string{
	'1': "2q`", '2': "13wq", '3': "24we", '4': "35er", '5': "46rt", '6': "57ty",
	'7': "68yu", '8': "79ui", '9': "80io", '0': "9-op",
	'q': "wa1s", 'w': "qase23", 'e': "wsdr34", 'r': "edft45", 't': "rfgy56",
	'y': "tghu67", 'u': "yhji78", 'i': "ujko89", 'o': "iklp90", 'p': "ol;0-",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc", 'g': "ftyhbv",
	'h': "gyujnb", 'j': "huikmn", 'k': "jiol,m", 'l': "kop;.",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk,",
}

// commonNgrams are typed faster than arbitrary key pairs.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true, "co": true, "om": true,
	"the": true, "and": true, "ing": true, "ion": true, "com": true,
}

// burstSpeedFactor shortens delays between keys of the same word.
const burstSpeedFactor = 0.7

// Type focuses the element with a click and types text into it. Words go
// out in quick bursts with a longer pause at each space.
func (h *Humanoid) Type(ctx context.Context, selector, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.click(ctx, selector); err != nil {
		return fmt.Errorf("humanoid: failed to focus %q: %w", selector, err)
	}
	if err := h.pause(ctx, 200, 80); err != nil {
		return err
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if unicode.IsSpace(runes[i]) {
			next := float64(wordLen(runes, i+1))
			mean := 100 + next*5 + h.rng.Float64()*80
			if err := h.pause(ctx, mean, mean*0.4); err != nil {
				return err
			}
			if err := h.press(ctx, string(runes[i])); err != nil {
				return err
			}
			continue
		}

		skip, err := h.typeRune(ctx, runes, i)
		if err != nil {
			return err
		}
		if skip {
			i++
		}
	}
	return nil
}

// typeRune types runes[i], possibly via a corrected slip. It reports
// whether runes[i+1] was typed too.
func (h *Humanoid) typeRune(ctx context.Context, runes []rune, i int) (bool, error) {
	if err := h.keyPause(ctx, burstSpeedFactor, runes, i); err != nil {
		return false, err
	}

	if h.rng.Float64() < h.cfg.TypoRate {
		handled, skip, err := h.slip(ctx, runes, i)
		if err != nil {
			return false, fmt.Errorf("humanoid: typo correction failed: %w", err)
		}
		if handled {
			return skip, nil
		}
	}

	if err := h.press(ctx, string(runes[i])); err != nil {
		return false, fmt.Errorf("humanoid: failed to send %q: %w", runes[i], err)
	}
	return false, nil
}

// slip types a mistake and corrects it. handled is false when runes[i] has
// no plausible slip, in which case nothing was sent.
func (h *Humanoid) slip(ctx context.Context, runes []rune, i int) (handled, skip bool, err error) {
	char := runes[i]
	if h.rng.Float64() < h.cfg.TypoTransposeShare && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
		return true, true, h.transpose(ctx, char, runes[i+1])
	}

	neighbors, ok := keyboardNeighbors[unicode.ToLower(char)]
	if !ok {
		return false, false, nil
	}
	wrong := rune(neighbors[h.rng.Intn(len(neighbors))])
	if unicode.IsUpper(char) {
		wrong = unicode.ToUpper(wrong)
	}
	return true, false, h.sequence(ctx,
		keystroke{string(wrong), correctionPause},
		keystroke{KeyBackspace, retypePause},
		keystroke{string(char), noPause},
	)
}

// transpose types next before char, notices, erases both and retypes them.
func (h *Humanoid) transpose(ctx context.Context, char, next rune) error {
	return h.sequence(ctx,
		keystroke{string(next), swapPause},
		keystroke{string(char), correctionPause},
		keystroke{KeyBackspace, retypePause},
		keystroke{KeyBackspace, retypePause},
		keystroke{string(char), swapPause},
		keystroke{string(next), noPause},
	)
}

type pauseScale struct{ mean, stdDev float64 }

// keystroke is a key followed by an inter-key pause scaled by after.
type keystroke struct {
	keys  string
	after pauseScale
}

var (
	noPause         = pauseScale{}
	swapPause       = pauseScale{0.8, 0.3}
	correctionPause = pauseScale{2.5, 1.2}
	retypePause     = pauseScale{1.2, 0.5}
)

func (h *Humanoid) sequence(ctx context.Context, strokes ...keystroke) error {
	for _, k := range strokes {
		if err := h.press(ctx, k.keys); err != nil {
			return err
		}
		if k.after == noPause {
			continue
		}
		if err := h.scaledKeyPause(ctx, k.after.mean, k.after.stdDev, nil, 0); err != nil {
			return err
		}
	}
	return nil
}

// press sends keys and holds for a dwell time.
func (h *Humanoid) press(ctx context.Context, keys string) error {
	if err := h.executor.SendKeys(ctx, keys); err != nil {
		return err
	}
	return h.executor.Sleep(ctx, h.keyHoldDuration())
}

func (h *Humanoid) keyHoldDuration() time.Duration {
	d := h.rng.NormFloat64()*h.cfg.KeyHoldStdDev + h.cfg.KeyHoldMean
	return time.Duration(math.Max(20.0, d)) * time.Millisecond
}

func (h *Humanoid) keyPause(ctx context.Context, speed float64, runes []rune, i int) error {
	return h.scaledKeyPause(ctx, speed, speed, runes, i)
}

// scaledKeyPause sleeps an inter-key delay. With runes set, the delay
// shrinks when runes[i] completes a common n-gram.
func (h *Humanoid) scaledKeyPause(ctx context.Context, meanScale, stdDevScale float64, runes []rune, i int) error {
	factor := 1.0
	switch {
	case i >= 2 && commonNgrams[strings.ToLower(string(runes[i-2:i+1]))]:
		factor = h.cfg.KeyPauseNgramFactor3
	case i >= 1 && commonNgrams[strings.ToLower(string(runes[i-1:i+1]))]:
		factor = h.cfg.KeyPauseNgramFactor2
	}

	mean := h.cfg.KeyPauseMean * meanScale * factor
	floor := h.cfg.KeyPauseMin * meanScale * factor
	d := h.rng.NormFloat64()*h.cfg.KeyPauseStdDev*stdDevScale + mean
	return h.executor.Sleep(ctx, time.Duration(math.Max(floor, d))*time.Millisecond)
}

// wordLen counts the runes from start up to the next space.
func wordLen(runes []rune, start int) int {
	n := 0
	for j := start; j < len(runes) && !unicode.IsSpace(runes[j]); j++ {
		n++
	}
	return n
}

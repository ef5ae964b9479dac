package parley

// TruncatingFormatter wraps a Formatter with a token budget. When the
// formatted conversation exceeds MaxTokens it drops the oldest non-system
// message and re-formats, repeating until the count fits or only system
// messages remain. With no counter or a non-positive budget it formats
// unchanged.
type TruncatingFormatter struct {
	inner     Formatter
	counter   TokenCounter
	maxTokens int
}

var _ Formatter = (*TruncatingFormatter)(nil)

func NewTruncatingFormatter(inner Formatter, counter TokenCounter, maxTokens int) *TruncatingFormatter {
	return &TruncatingFormatter{inner: inner, counter: counter, maxTokens: maxTokens}
}

func (f *TruncatingFormatter) Format(msgs []Msg) []FormattedMessage {
	if f.counter == nil || f.maxTokens <= 0 {
		return f.inner.Format(msgs)
	}
	kept := append([]Msg(nil), msgs...)
	for {
		formatted := f.inner.Format(kept)
		count, err := f.counter.Count(formatted)
		if err != nil || count <= f.maxTokens {
			return formatted
		}
		trimmed := dropOldestNonSystem(kept)
		if len(trimmed) == len(kept) {
			// Only system messages left; emit them even over budget.
			return formatted
		}
		kept = trimmed
	}
}

func (f *TruncatingFormatter) Capabilities() Capabilities {
	return f.inner.Capabilities()
}

// dropOldestNonSystem removes the oldest non-system message. System
// messages are pinned and stay ahead of the remainder.
func dropOldestNonSystem(msgs []Msg) []Msg {
	var system, rest []Msg
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	if len(rest) == 0 {
		return msgs
	}
	return append(system, rest[1:]...)
}

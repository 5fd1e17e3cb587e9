package model

// SignalKind discriminates what a produced reply actually is once control
// markers have been parsed out of the raw model output.
type SignalKind string

const (
	// SignalPlainReply is a client-facing answer with nothing attached.
	SignalPlainReply SignalKind = "plain_reply"

	// SignalClassification is a reply that also carries moderation flags;
	// adapters that can hand a dialog over act on them.
	SignalClassification SignalKind = "classification"
)

// ClassificationFlags are the moderation signals the classifier emits
// alongside the retrieval-necessity verdict. Channel adapters act on them
// (e.g. TalkMe hands the dialog to a human operator).
type ClassificationFlags struct {
	// OffTopic is set when the caller's question is irrelevant to the salon.
	OffTopic bool `json:"is_client_question_irrelevant_to_context"`

	// WantsHuman is set when the caller explicitly asks for a human agent.
	WantsHuman bool `json:"does_client_asks_human_support"`
}

// ReplySignal is the structured result of a turn: the display text plus any
// control information that used to ride inline in the raw model output.
type ReplySignal struct {
	Kind  SignalKind          `json:"kind"`
	Text  string              `json:"text"`
	Flags ClassificationFlags `json:"flags"`
}

package models

const (
	BoilerplatePhrase  = "i am writing to file a complaint"
	NonAlphanumRegex   = `[^a-z0-9\s]`
	WhitespaceRegex    = `\s+`
	AnswerCue          = "Answer:"
	ChunkSeparator     = "\n\n"
	ShortenPlaceholder = " [...]"
)

// distance metrics understood by every store backend
const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
)

// metadata keys written on every stored chunk
const (
	MetaComplaintID = "complaint_id"
	MetaProduct     = "product"
	MetaChunkIndex  = "chunk_index"
	MetaSeq         = "seq"
	MetaIngestRun   = "ingest_run"
)

var (
	// PromptTemplate is rendered with the langchaingo f-string formatter.
	PromptTemplate = `You are a financial analyst assistant for CrediTrust.
Your task is to answer questions about customer complaints.
Use ONLY the provided complaint excerpts.
If the context does not contain enough information, say so clearly.

Context:
{context}

Question:
{question}

Answer:`
)

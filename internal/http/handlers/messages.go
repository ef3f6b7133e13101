package handlers

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	msgInvalidJSON         = "The request body is not valid JSON."
	msgBriefRequired       = "A brief is required."
	msgExecutionIDRequired = "execution_id is required."
	msgInvalidInput        = "The request is invalid: %s"
	msgStateExpired        = "This run is no longer waiting for input. Start a new run."
	msgNoPendingSuspension = "This run is not waiting for a decision right now."
	msgNotFound            = "No run exists with id %s."
	msgInternal            = "Something went wrong. Please try again."
	msgEnhancementFailed   = "We could not turn the brief into a complete plan. Add more detail and try again."
	msgAllPersonasFailed   = "None of the creative personas produced a result."
	msgRejectLimitReached  = "Too many drafts were rejected. Start a new run with a revised brief."
	msgInterrupted         = "The run stopped unexpectedly."
	msgAwaitingApproval    = "Review the enhanced brief and approve it or send feedback."
	msgNeedsClarification  = "Answer the open questions to continue."
	msgCompletedWithErrors = "Finished with %d persona error(s)."
)

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	id := language.Indonesian
	set := func(key, text string) { _ = b.SetString(id, key, text) }
	set(msgInvalidJSON, "Isi permintaan bukan JSON yang valid.")
	set(msgBriefRequired, "Brief wajib diisi.")
	set(msgExecutionIDRequired, "execution_id wajib diisi.")
	set(msgInvalidInput, "Permintaan tidak valid: %s")
	set(msgStateExpired, "Proses ini sudah tidak menunggu masukan. Mulai proses baru.")
	set(msgNoPendingSuspension, "Proses ini sedang tidak menunggu keputusan.")
	set(msgNotFound, "Tidak ada proses dengan id %s.")
	set(msgInternal, "Terjadi kesalahan. Silakan coba lagi.")
	set(msgEnhancementFailed, "Brief belum bisa diolah menjadi rencana lengkap. Tambahkan detail lalu coba lagi.")
	set(msgAllPersonasFailed, "Tidak ada persona kreatif yang menghasilkan output.")
	set(msgRejectLimitReached, "Terlalu banyak draf ditolak. Mulai proses baru dengan brief yang sudah direvisi.")
	set(msgInterrupted, "Proses berhenti secara tidak terduga.")
	set(msgAwaitingApproval, "Tinjau brief yang sudah disempurnakan lalu setujui atau kirim masukan.")
	set(msgNeedsClarification, "Jawab pertanyaan yang masih terbuka untuk melanjutkan.")
	set(msgCompletedWithErrors, "Selesai dengan %d kesalahan persona.")
	return b
}

var messages = newCatalog()

// printer returns a message printer for a locale negotiated by the I18N middleware.
func printer(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag, message.Catalog(messages))
}

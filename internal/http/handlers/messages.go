package handlers

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var errorMessages = map[string][2]string{
	"bad_request":         {"The request is invalid.", "Permintaan tidak valid."},
	"invalid_amount":      {"Amount must be greater than zero with at most two decimals.", "Jumlah harus lebih dari nol dengan maksimal dua desimal."},
	"invalid_currency":    {"Currency code is not recognised.", "Kode mata uang tidak dikenal."},
	"currency_mismatch":   {"Donation currency must match the need's currency.", "Mata uang donasi harus sama dengan mata uang kebutuhan."},
	"need_not_verified":   {"This need has not been verified yet.", "Kebutuhan ini belum diverifikasi."},
	"need_closed":         {"This need is no longer accepting donations.", "Kebutuhan ini tidak lagi menerima donasi."},
	"already_confirmed":   {"This donation has already been confirmed.", "Donasi ini sudah dikonfirmasi."},
	"donation_failed":     {"This donation's payment failed.", "Pembayaran donasi ini gagal."},
	"need_not_found":      {"Need not found.", "Kebutuhan tidak ditemukan."},
	"donation_not_found":  {"Donation not found.", "Donasi tidak ditemukan."},
	"not_found":           {"Resource not found.", "Data tidak ditemukan."},
	"duplicate_operation": {"The same request is already being processed.", "Permintaan yang sama sedang diproses."},
	"conflict":            {"The resource changed concurrently, please retry.", "Data berubah bersamaan, silakan coba lagi."},
	"unauthorized":        {"Authentication required.", "Autentikasi diperlukan."},
	"forbidden":           {"You are not allowed to perform this action.", "Anda tidak diizinkan melakukan tindakan ini."},
	"unavailable":         {"Service unavailable.", "Layanan tidak tersedia."},
	"canceled":            {"The request was cancelled before it finished.", "Permintaan dibatalkan sebelum selesai."},
	"internal":            {"Internal server error.", "Terjadi kesalahan pada server."},
	"docs_title":          {"Funding Ledger API", "API Buku Besar Pendanaan"},
}

var messageCatalog = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for code, text := range errorMessages {
		_ = b.SetString(language.English, code, text[0])
		_ = b.SetString(language.Indonesian, code, text[1])
	}
	return b
}

func localize(locale, code string) string {
	tag := language.English
	if locale == "id" {
		tag = language.Indonesian
	}
	return message.NewPrinter(tag, message.Catalog(messageCatalog)).Sprintf(code)
}

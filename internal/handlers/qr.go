package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// qrHandler renders a PNG QR code of the lobby's join link.
func (s *Server) qrHandler(w http.ResponseWriter, r *http.Request) {
	lobby, _, err := s.coord.GetLobby(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	png, err := qrcode.Encode(s.joinURL(r, lobby.Code), qrcode.Medium, qrSize)
	if err != nil {
		s.logger.WithError(err).WithField("lobby", lobby.ID).Error("qr generation failed")
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) joinURL(r *http.Request, code string) string {
	base := s.opts.BaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join/" + code
}

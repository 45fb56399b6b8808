package controllers

import (
	"net/http"

	"github.com/angelmondragon/vibes-market-backend/api/middleware"
	"github.com/angelmondragon/vibes-market-backend/api/responses"
)

type pingResponse struct {
	Scope  string `json:"scope"`
	Status string `json:"status"`
	UserID string `json:"userId,omitempty"`
	Admin  bool   `json:"admin,omitempty"`
}

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, pingResponse{Scope: "public", Status: "ok"})
	}
}

// PrivatePing echoes the verified caller, which is handy when debugging SSO tokens.
func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, pingResponse{
			Scope:  "private",
			Status: "ok",
			UserID: middleware.UserIDFromContext(r.Context()),
			Admin:  middleware.IsAdminFromContext(r.Context()),
		})
	}
}

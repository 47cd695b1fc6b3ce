package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"modelkeep/internal/persona"
	"modelkeep/internal/tts"
)

// Optional subsystems. If unset, their routes are not mounted.
var (
	personaStore *persona.Store
	ttsClient    *tts.Client
)

// SetPersonaStore installs a persona store; NewMux then serves /personas.
func SetPersonaStore(s *persona.Store) { personaStore = s }

// SetTTSClient installs a speech relay; NewMux then serves /speak.
func SetTTSClient(c *tts.Client) { ttsClient = c }

type speakBody struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

func mountPersonas(r chi.Router, svc Service) {
	if personaStore != nil {
		r.Get("/personas", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string][]string{"personas": personaStore.Names()})
		})
		r.Post("/personas/{name}", func(w http.ResponseWriter, req *http.Request) {
			name := chi.URLParam(req, "name")
			if _, ok := personaStore.Get(name); !ok {
				writeJSONError(w, http.StatusNotFound, "unknown persona: "+name)
				return
			}
			if err := personaStore.Apply(name, svc); err != nil {
				writeJSONError(w, statusForError(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"persona": name})
		})
	}
	if ttsClient != nil {
		r.Post("/speak", func(w http.ResponseWriter, req *http.Request) {
			if !requireJSON(w, req) {
				return
			}
			req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
			var body speakBody
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			if strings.TrimSpace(body.Text) == "" {
				writeJSONError(w, http.StatusBadRequest, "text is required")
				return
			}
			ctx, cancel := joinContexts(serverBaseCtx, req.Context())
			defer cancel()
			if err := ttsClient.Speak(ctx, body.Text, body.Voice); err != nil {
				writeJSONError(w, http.StatusBadGateway, err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

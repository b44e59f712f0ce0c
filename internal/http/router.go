package http

import (
	"net/http"
	"strings"

	"github.com/StepsArtworks/rollcall/internal/application"
)

type RouterConfig struct {
	Auth       *AuthHandler
	Attendance *AttendanceHandler
	Tracker    *TrackerHandler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Auth != nil {
		mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost:
				cfg.Auth.CreateSession(w, r)
			case http.MethodDelete:
				cfg.Auth.DeleteSession(w, r)
			default:
				methodNotAllowed(w, http.MethodPost, http.MethodDelete)
			}
		})
		mux.HandleFunc("/session/account", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Auth.GetAccount(w, r)
		})
	}

	if cfg.Attendance != nil {
		mux.HandleFunc("/departments", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Attendance.ListDepartments(w, r)
		})
		mux.HandleFunc("/departments/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/departments/")
			name, action, _ := strings.Cut(rest, "/")
			dept, ok := application.ParseDepartment(name)
			if !ok {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithDepartment(r.Context(), dept))

			switch action {
			case "roster":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Attendance.GetRoster(w, r)
			case "attendance":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Attendance.SubmitAttendance(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Tracker != nil {
		mux.HandleFunc("/submissions", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Tracker.GetSubmissions(w, r)
		})
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gigapi/gigaview/model"
	jsoniter "github.com/json-iterator/go"
)

var (
	EmptyBody = errors.New("request body is empty")
	json      = jsoniter.ConfigCompatibleWithStandardLibrary
)

// DatasetService is what the HTTP surface needs from the dataset layer.
type DatasetService interface {
	Query(ctx context.Context, req *model.DataRequest) (*model.TabularResponse, error)
	Map(ctx context.Context, req *model.MapRequest) (*model.MapResponse, error)
}

type Handler struct {
	Service DatasetService
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, model.NewCompileErr(EmptyBody.Error(), nil)
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, model.NewCompileErr(EmptyBody.Error(), nil)
	}
	return body, nil
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	req, err := model.DecodeDataRequest(body)
	if err != nil {
		return err
	}
	res, err := h.Service.Query(r.Context(), req)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Map(w http.ResponseWriter, r *http.Request) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	req, err := model.DecodeMapRequest(body)
	if err != nil {
		return err
	}
	res, err := h.Service.Map(r.Context(), req)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) error {
	return WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err := w.Write([]byte("pong"))
	return err
}

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error onto an HTTP status by its code.
func StatusFor(err error) int {
	switch model.ErrCode(err) {
	case model.CompileErr:
		return http.StatusBadRequest
	case model.OverloadErr:
		return http.StatusServiceUnavailable
	case model.CacheErr:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Code  string         `json:"code,omitempty"`
	Title string         `json:"title"`
	Data  map[string]any `json:"data,omitempty"`
	Error string         `json:"error"`
}

// WriteError renders err as a JSON body with the mapped status.
func WriteError(w http.ResponseWriter, err error) {
	body := errorBody{Title: "internal error", Error: err.Error()}
	var coded *model.Err
	if errors.As(err, &coded) {
		body.Code, body.Title, body.Data = coded.Code, coded.Title, coded.Data
	}
	status := StatusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	_ = WriteJSON(w, status, body)
}

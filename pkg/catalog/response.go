package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"ampctl/pkg/amp"
)

var txCounter atomic.Int32

type baseResponse struct {
	ClientTransactionID int    `json:"ClientTransactionID"`
	ServerTransactionID int    `json:"ServerTransactionID"`
	ErrorNumber         int    `json:"ErrorNumber"`
	ErrorMessage        string `json:"ErrorMessage"`
	Value               any    `json:"Value,omitempty"`
}

// getClientTxID returns the optional ClientTransactionID query parameter.
func getClientTxID(r *http.Request) (int, error) {
	for param, value := range r.URL.Query() {
		if strings.EqualFold(param, "clienttransactionid") {
			id, err := strconv.Atoi(value[0])
			if err != nil || id < 0 {
				return 0, errors.New("ClientTransactionID must be a non-negative integer")
			}
			return id, nil
		}
	}
	return 0, nil
}

func writeResponse(w http.ResponseWriter, r *http.Request, response baseResponse) {
	txID, err := getClientTxID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response.ServerTransactionID = int(txCounter.Add(1))
	response.ClientTransactionID = txID
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func handleResponse(w http.ResponseWriter, r *http.Request, value any) {
	writeResponse(w, r, baseResponse{Value: value})
}

// handleError reports err with its amp error code. The HTTP status stays
// 200; clients look at ErrorNumber.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	writeResponse(w, r, baseResponse{
		ErrorNumber:  amp.ErrorCode(err),
		ErrorMessage: err.Error(),
	})
}

// handleCatalog adapts a value producing function to an http.Handler
// answering with the JSON envelope.
func handleCatalog(fn func(r *http.Request) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value, err := fn(r)
		if err != nil {
			handleError(w, r, err)
			return
		}
		handleResponse(w, r, value)
	})
}

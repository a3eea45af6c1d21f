// servidor-burrao é um upstream lento para validar o limite de concorrência:
// cada requisição segura a vaga do gateway pelo tempo pedido em ?delay=.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"vault-gateway/logging"
)

const maxDelay = 60 * time.Second

func main() {
	logger, err := logging.New(true, logging.DEFAULT)
	if err != nil {
		panic(err)
	}

	http.HandleFunc("/showTela", func(w http.ResponseWriter, r *http.Request) {
		delay := time.Duration(0)
		if v := r.URL.Query().Get("delay"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				http.Error(w, "invalid delay", http.StatusBadRequest)
				return
			}
			delay = min(d, maxDelay)
		}

		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso após %s!</p>", delay)
		logger.Info("Alguém acessou o endpoint /showTela", "delay", delay, "requestID", r.Header.Get("X-Request-Id"))
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info("Servidor rodando", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logging.Fatal(logger, err, "Erro ao subir o servidor")
	}
}

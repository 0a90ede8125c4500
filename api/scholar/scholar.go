package scholar

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"

	"ScholarSaas/api/scholar/imports"

	"github.com/jackc/pgx/v5/pgxpool"
)

func StartScholarService(db *sql.DB) {
	mux := http.NewServeMux()
	mux.HandleFunc("/scholar/hello", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello from Scholar Service"))
	})

	if path := os.Getenv("PROGRAM_PREFIX_CONFIG"); path != "" {
		if err := imports.LoadProgramPrefixes(path); err != nil {
			log.Printf("[ERROR] program prefix config %s: %v", path, err)
		}
	}

	user := os.Getenv("DB_USER")
	pass := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	name := os.Getenv("DB_NAME")
	if user != "" && pass != "" && host != "" && port != "" && name != "" {
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name)

		// one shared pool for the batch-heavy import store
		pgxPool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			log.Fatalf("failed to connect to pgxpool DB: %v", err)
		}

		store := imports.NewPgRecipientStore(pgxPool)
		sessions := imports.Sessions()

		mux.Handle("/scholar/imports/upload", imports.UploadImportFile(sessions))
		mux.Handle("/scholar/imports/validate", imports.ValidateImport(sessions, store))
		mux.Handle("/scholar/imports/resolve", imports.ResolveImport(sessions, store))
		mux.Handle("/scholar/imports/choice", imports.RecordResolutionChoice(sessions))
		mux.Handle("/scholar/imports/rows/delete", imports.DeleteImportRows(sessions))
		mux.Handle("/scholar/imports/commit", imports.CommitImportBatch(sessions, store))
		mux.Handle("/scholar/imports/batches", imports.ListImportBatches(db))
	} else {
		log.Println("[ERROR] DB env vars missing; scholar import routes not registered")
	}

	log.Println("Scholar Service started on :7143")
	err := http.ListenAndServe(":7143", mux)
	if err != nil {
		log.Fatalf("Scholar Service failed: %v", err)
	}
}

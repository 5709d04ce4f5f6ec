// Package oauth is the embeddable HTTP surface of the mail-aliases
// authorization server. It wires the protocol engine in the server package
// to /oauth/authorize and /oauth/token handlers, renders the login prompt
// and consent pages, and leaves session authentication to the embedding
// application through the Authenticator interface.
//
// Minimal wiring:
//
//	store := memory.New()
//	srv, _ := server.New(store, &server.Config{
//		Issuer:     "https://app.example.com",
//		SigningKey: key,
//	})
//	handler, _ := oauth.NewHandler(srv, &oauth.HandlerConfig{
//		ServerURL:     "https://app.example.com",
//		Authenticator: sessions,
//	})
//	mux := http.NewServeMux()
//	handler.RegisterHandlers(mux)
package oauth

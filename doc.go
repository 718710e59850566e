// Package netutil provides two small network helpers: one-shot HTTP requests
// and bulk file transfer over SFTP.
//
// # HTTP
//
// Every call builds its own client, sends one request and returns the whole
// response body:
//
//	body, err := netutil.Get(ctx, "https://example.com/status")
//
//	resp, err := netutil.Post(ctx, "https://example.com/api", `{"a":1}`,
//		netutil.WithContentType("application/json"),
//		netutil.WithBasicAuth("user", "secret"))
//
//	resp, err := netutil.PostForm(ctx, "http://example.com/login", url.Values{
//		"user": {"deploy"},
//	})
//
// For https URLs the client accepts self-signed certificates and does not
// verify the hostname. Non-2xx responses are returned like any other; use
// WithStatusCheck or Do to inspect the status.
//
// # SFTP
//
// A Client holds one SSH session with an SFTP channel from NewClient until
// Destroy:
//
//	client, err := netutil.NewClient(netutil.Config{
//		Host:    "example.com",
//		User:    "deploy",
//		KeyPath: "~/.ssh/id_ed25519",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.SetIgnoreFiles([]string{"."})
//	result, err := client.UploadFiles(ctx, "/local/out", "/remote/in")
//
// Failures carry a Kind and can be matched with errors.Is against
// ErrConnection, ErrIO, ErrEncoding, ErrTransfer and ErrState.
package netutil

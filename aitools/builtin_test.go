package aitools_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"conductor/aitools"
)

var _ = Describe("Builtin tools", func() {
	It("knows every listed name", func() {
		for _, name := range aitools.BuiltinNames() {
			tool, ok := aitools.Builtin(name)
			Expect(ok).To(BeTrue())
			Expect(tool.ToolName()).To(Equal(name))
		}
		_, ok := aitools.Builtin("dataset_next")
		Expect(ok).To(BeFalse())
	})

	It("runs bash commands", func() {
		tool, _ := aitools.Builtin("bash")
		Expect(tool.Call(context.Background(), `{"command": "echo hello"}`)).To(Equal("hello\n"))
		Expect(tool.Call(context.Background(), `{}`)).To(Equal("Error: command is required"))
	})

	It("stops bash commands when the context ends", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		tool, _ := aitools.Builtin("bash")
		Expect(tool.Call(ctx, `{"command": "sleep 5"}`)).To(ContainSubstring("Error:"))
	})

	It("performs GET and POST requests", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			w.Write([]byte(r.Method + " " + r.Header.Get("Content-Type") + " " + string(body)))
		}))
		defer srv.Close()

		get, _ := aitools.Builtin("http_get")
		Expect(get.Call(context.Background(), `{"url": "`+srv.URL+`"}`)).To(Equal("Status: 200 OK\n\nGET  "))

		post, _ := aitools.Builtin("http_post")
		out := post.Call(context.Background(), `{"url": "`+srv.URL+`", "body": {"a": 1}}`)
		Expect(out).To(Equal(`Status: 200 OK` + "\n\n" + `POST application/json {"a":1}`))
	})

	It("reports non-zero exits and timeouts", func() {
		tool := aitools.NewBashTool()
		Expect(tool.Call(context.Background(), `{"command": "echo out; exit 3"}`)).To(Equal("out\n\nError: exit status 3"))

		tool.Timeout = 50 * time.Millisecond
		Expect(tool.Call(context.Background(), `{"command": "sleep 5"}`)).To(ContainSubstring("timed out after 50ms"))
	})

	It("sends DELETE requests without a body", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		del, ok := aitools.Builtin("http_delete")
		Expect(ok).To(BeTrue())
		Expect(del.ToolPayloadSchema().Properties).NotTo(HaveKey("body"))
		Expect(del.Call(context.Background(), `{"url": "`+srv.URL+`"}`)).To(Equal("Status: 204 No Content\n\n"))
		Expect(del.Call(context.Background(), `{"url": "  "}`)).To(Equal("Error: url is required"))
	})
})

var _ = Describe("Schema.Decode", func() {
	schema := aitools.Schema{
		Type: aitools.TypeObject,
		Properties: aitools.PropertyMap{
			"name":  {Type: aitools.TypeString},
			"count": {Type: aitools.TypeInteger},
		},
		Required: []string{"name", "count"},
	}

	var out struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	It("decodes complete payloads", func() {
		Expect(schema.Decode(`{"name": "a", "count": 0}`, &out)).To(Succeed())
		Expect(out.Name).To(Equal("a"))
	})

	It("rejects missing, null and blank required fields", func() {
		Expect(schema.Decode(`{"count": 1}`, &out)).To(MatchError("name is required"))
		Expect(schema.Decode(`{"name": "a", "count": null}`, &out)).To(MatchError("count is required"))
		Expect(schema.Decode(`{"name": " ", "count": 1}`, &out)).To(MatchError("name is required"))
	})

	It("rejects malformed JSON", func() {
		Expect(schema.Decode(`{`, &out)).To(MatchError(ContainSubstring("invalid parameters")))
	})
})

package spec

// Typed intermediate representation produced by Normalize. Everything after
// normalization consumes these records, never the raw document tree.

type HttpMethod string

const (
	GET    HttpMethod = "GET"
	POST   HttpMethod = "POST"
	PUT    HttpMethod = "PUT"
	DELETE HttpMethod = "DELETE"
	PATCH  HttpMethod = "PATCH"
)

// Methods lists the recognized verbs in the order they are visited within a
// path item. OPTIONS, HEAD and TRACE are ignored.
var Methods = []HttpMethod{GET, POST, PUT, DELETE, PATCH}

// Model is the normalized view of one specification.
type Model struct {
	Title       string
	Version     string
	Description string
	// ServerURL is servers[0].url, or empty when no server is declared.
	ServerURL string
	Endpoints []EndpointRecord
	// Schemas holds every named schema in declaration order.
	Schemas []SchemaRecord
}

type EndpointRecord struct {
	Path        string
	Method      HttpMethod
	Summary     string
	Description string
	OperationID string
	Tags        []string
	Parameters  []Parameter
	Responses   map[string]Response // by status code
}

// Key returns "METHOD /path", unique within a specification.
func (e EndpointRecord) Key() string { return string(e.Method) + " " + e.Path }

type Parameter struct {
	Name     string
	In       string // path|query|header|cookie
	Required bool
	// Type is the primitive schema type; empty when the parameter has no schema.
	Type string
}

type Response struct {
	Description string
	Content     []string // media types
}

type SchemaRecord struct {
	Name       string
	Type       string
	Properties map[string]Property
	Required   []string
}

type Property struct {
	Type      string
	Format    string
	Enum      []any
	ItemsType string
}

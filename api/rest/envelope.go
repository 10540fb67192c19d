package rest

import "github.com/gin-gonic/gin"

// statusBlock is the status header carried by every response envelope.
type statusBlock struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// resourceLink is the HATEOAS-style follow-up link injected into resources.
type resourceLink struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// getLink builds a GET self-link for a document in a collection.
func getLink(baseURL, collection, id string) resourceLink {
	return resourceLink{Type: "GET", URL: baseURL + "/" + collection + "/" + id}
}

// respond writes the envelope: a status block merged with the payload keys.
func respond(c *gin.Context, code int, message string, payload gin.H) {
	body := gin.H{"status": statusBlock{Code: code, Message: message}}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(code, body)
}

// patchOp is one field assignment in a PATCH request body.
type patchOp struct {
	PropName string      `json:"propName" binding:"required"`
	Value    interface{} `json:"value"`
}

// toInt converts a JSON-decoded numeric value to int.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

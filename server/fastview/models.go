// fastview implements a builder pattern for simple server-side views:
// given an input data format, apply a transformation to a view-model,
// and then multiplex that data to one or more views whose element updates
// are pushed to the browser.
package fastview

import (
	"html/template"
)

// EleUpdate is an element identifier and a set of operations to apply to its attributes/content.
type EleUpdate struct {
	// The id by which to find the element
	EleId string
	// Op keys are attrib keys or 'textContent', values are the strings to which these are set.
	// Example: ('fill','red') means 'set attribute fill to red'. 'textContent' is a reserved key:
	// ('textContent','abc') means 'set ele.textContent to abc'.
	Ops []Op
}

// Op is a key and value. For example an html attribute and its new value.
type Op struct {
	Key   string
	Value string
}

// ViewComponent is a server side view: Parse adds its template to a parent template,
// Updates is the chan of element updates that keep the rendered view current.
type ViewComponent interface {
	Updates() <-chan []EleUpdate
	// Parse defines the component's template in the passed parent, thus inheriting
	// its func-map, and returns the name of the defined template.
	Parse(*template.Template) (string, error)
}

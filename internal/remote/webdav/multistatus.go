package webdav

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/openmined/gridsync/internal/remote"
)

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:getlastmodified/>
    <d:getcontentlength/>
    <d:resourcetype/>
  </d:prop>
</d:propfind>`

type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"DAV: response"`
}

type davResponse struct {
	Href      string     `xml:"DAV: href"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Status string `xml:"DAV: status"`
	Prop   prop   `xml:"DAV: prop"`
}

type prop struct {
	LastModified  string       `xml:"DAV: getlastmodified"`
	ContentLength string       `xml:"DAV: getcontentlength"`
	ResourceType  resourceType `xml:"DAV: resourcetype"`
}

type resourceType struct {
	Collection *struct{} `xml:"DAV: collection"`
}

func parseMultistatus(data []byte) (*multistatus, error) {
	var ms multistatus
	if err := xml.Unmarshal(data, &ms); err != nil {
		return nil, err
	}
	return &ms, nil
}

// name is the unescaped last segment of the href.
func (r *davResponse) name() (string, error) {
	u, err := url.Parse(r.Href)
	if err != nil {
		return "", err
	}
	base := path.Base(strings.TrimRight(u.Path, "/"))
	if base == "." || base == "/" {
		return "", nil
	}
	return base, nil
}

// okProp is the propstat block the server answered with 200, if any.
func (r *davResponse) okProp() *prop {
	for i := range r.Propstats {
		if strings.Contains(r.Propstats[i].Status, " 200 ") {
			return &r.Propstats[i].Prop
		}
	}
	return nil
}

func (p *prop) entry(name string) remote.Entry {
	e := remote.Entry{Name: name}
	if t, err := http.ParseTime(p.LastModified); err == nil {
		e.ModTime = t
	}
	if n, err := strconv.ParseInt(p.ContentLength, 10, 64); err == nil {
		e.Size = n
	}
	return e
}

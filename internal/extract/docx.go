package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const maxXMLDepth = 256

var errXMLDepth = errors.New("xml nesting depth exceeds limit")

// extractDOCX renders word/document.xml as markdown: heading styles become
// # headings, other paragraphs are separated by blank lines.
func extractDOCX(data []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	body := findZipFile(zr, "word/document.xml")
	if body == nil {
		return nil, fmt.Errorf("word/document.xml not found in archive")
	}
	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	blocks, title, counts, err := parseDocumentXML(rc)
	if err != nil {
		return nil, err
	}

	meta := map[string]any{
		"paragraph_count": counts.paragraphs,
		"heading_count":   counts.headings,
	}
	if core := findZipFile(zr, "docProps/core.xml"); core != nil {
		props, err := readCoreProps(core)
		if err == nil {
			if props.Created != "" {
				meta["created"] = props.Created
			}
			if props.Creator != "" {
				meta["author"] = props.Creator
			}
			if title == "" {
				title = props.Title
			}
		}
	}

	return &Result{
		Text:     strings.Join(blocks, "\n\n"),
		Title:    title,
		Metadata: meta,
	}, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

type docxCounts struct {
	paragraphs int
	headings   int
}

func parseDocumentXML(r io.Reader) ([]string, string, docxCounts, error) {
	var (
		blocks  []string
		title   string
		counts  docxCounts
		current strings.Builder
		style   string
		inPara  bool
		inText  bool
		depth   int
	)

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", counts, fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > maxXMLDepth {
				return nil, "", counts, errXMLDepth
			}
			switch t.Name.Local {
			case "p":
				inPara = true
				current.Reset()
				style = ""
			case "pStyle":
				for _, a := range t.Attr {
					if a.Name.Local == "val" {
						style = a.Value
					}
				}
			case "t":
				inText = inPara
			case "tab":
				if inPara {
					current.WriteByte(' ')
				}
			case "br", "cr":
				if inPara {
					current.WriteByte('\n')
				}
			}

		case xml.CharData:
			if inText {
				current.Write(t)
			}

		case xml.EndElement:
			depth--
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if !inPara {
					continue
				}
				inPara = false
				text := strings.TrimSpace(current.String())
				if text == "" {
					continue
				}
				counts.paragraphs++
				if level := headingLevel(style); level > 0 {
					counts.headings++
					if title == "" {
						title = text
					}
					text = strings.Repeat("#", level) + " " + text
				}
				blocks = append(blocks, text)
			}
		}
	}

	return blocks, title, counts, nil
}

// headingLevel maps paragraph style ids such as "Heading2" or "Title" to a
// markdown heading level, 0 for body text.
func headingLevel(style string) int {
	lower := strings.ToLower(style)
	switch lower {
	case "title":
		return 1
	case "subtitle":
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if rest, ok := strings.CutPrefix(lower, prefix); ok {
			rest = strings.TrimSpace(rest)
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}

type coreProps struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
	Created string `xml:"created"`
}

func readCoreProps(f *zip.File) (*coreProps, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var props coreProps
	if err := xml.NewDecoder(io.LimitReader(rc, 1<<20)).Decode(&props); err != nil {
		return nil, err
	}
	props.Title = strings.TrimSpace(props.Title)
	props.Created = strings.TrimSpace(props.Created)
	props.Creator = strings.TrimSpace(props.Creator)
	return &props, nil
}

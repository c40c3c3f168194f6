package links

import "testing"

const sampleFrontPageHTML = `
<html><body>
<div id="home_pickup"><a href="/news/20240305/101/"><img src="/p.jpg"></a></div>
<ul class="articles_list">
  <li><a href="/news/20240305/102/">記事2</a></li>
  <li><a href="/news/20240305/103/">記事3</a></li>
</ul>
<ul class="articles_list">
  <li><a href="/news/20240305/104/">記事4</a></li>
</ul>
</body></html>`

func TestParseFrontPage(t *testing.T) {
	articles, err := ParseFrontPage(sampleFrontPageHTML, "https://www.example.com", "example")
	if err != nil {
		t.Fatalf("ParseFrontPage failed: %v", err)
	}

	if len(articles) != 4 {
		t.Fatalf("Expected 4 articles (1 pickup + 3 listed), got %d", len(articles))
	}

	// Pickup entries come first, then listing order.
	if articles[0].Key != "https://www.example.com/news/20240305/101/" {
		t.Errorf("Unexpected first key: %s", articles[0].Key)
	}
	if articles[3].Key != "https://www.example.com/news/20240305/104/" {
		t.Errorf("Unexpected last key: %s", articles[3].Key)
	}

	for _, a := range articles {
		if a.Category != "" {
			t.Errorf("Candidate category must start empty, got %q", a.Category)
		}
		if a.Media != "example" {
			t.Errorf("Expected media tag example, got %q", a.Media)
		}
		if a.URL != a.Key {
			t.Errorf("URL must equal key, got %q vs %q", a.URL, a.Key)
		}
		if a.DayID != "101" && a.DayID != "102" && a.DayID != "103" && a.DayID != "104" {
			t.Errorf("Unexpected day id %q for %s", a.DayID, a.Key)
		}
	}
}

func TestParseFrontPage_NoLinks(t *testing.T) {
	articles, err := ParseFrontPage("<html><body><p>empty</p></body></html>", "https://www.example.com", "example")
	if err != nil {
		t.Fatalf("ParseFrontPage failed: %v", err)
	}
	if len(articles) != 0 {
		t.Errorf("Expected no articles, got %d", len(articles))
	}
}

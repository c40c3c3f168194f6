// Package links discovers candidate article URLs from the member site's
// landing page.
package links

import (
	"fmt"
	"strings"

	"kprss/pkg/domain"

	"github.com/PuerkitoBio/goquery"
)

// ParseFrontPage extracts article links from the landing page HTML.
//
// Two sets are collected, in page order: the featured "home_pickup" blocks
// (first anchor of each) and every list item of the "articles_list"
// containers. Each href is resolved against rootURL and wrapped as a
// candidate article with an empty category; extraction fills the rest in.
func ParseFrontPage(html, rootURL, media string) ([]domain.Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse front page: %w", err)
	}

	var articles []domain.Article

	doc.Find("#home_pickup").Each(func(i int, pickup *goquery.Selection) {
		href, ok := pickup.Find("a").First().Attr("href")
		if !ok || href == "" {
			return
		}
		articles = append(articles, domain.NewArticle(rootURL+href, media, ""))
	})

	doc.Find(".articles_list").Each(func(i int, list *goquery.Selection) {
		list.Find("li").Each(func(j int, li *goquery.Selection) {
			href, ok := li.Find("a").First().Attr("href")
			if !ok || href == "" {
				return
			}
			articles = append(articles, domain.NewArticle(rootURL+href, media, ""))
		})
	})

	return articles, nil
}

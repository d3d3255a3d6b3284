package llmclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"

	"github.com/kurame123/confidant/internal/config"
	"github.com/kurame123/confidant/internal/encoding"
)

const defaultCaptionInstruction = "Describe this image in one or two short sentences, in the same language as the surrounding conversation."

// CaptionImage downloads imageURL, inlines it as a base64 data URI, and
// asks the vision-caption role to describe it (supplements §4.1 step 3:
// image parts are captioned before the empty-message invariant is
// checked, never forwarded as a remote URL to a role that may not be
// able to fetch it).
func (c *Client) CaptionImage(ctx context.Context, imageURL string) (string, error) {
	rb, ok := c.roles[config.RoleVisionCaption]
	if !ok {
		return "", fmt.Errorf("llmclient: role %q not configured", config.RoleVisionCaption)
	}

	dataURI, err := fetchDataURI(ctx, imageURL)
	if err != nil {
		return "", fmt.Errorf("llmclient: fetch image: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, rb.timeout)
	defer cancel()

	userMsg := openai.ChatCompletionUserMessageParam{
		Content: openai.ChatCompletionUserMessageParamContentUnion{
			OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
				{OfText: &openai.ChatCompletionContentPartTextParam{Text: defaultCaptionInstruction}},
				{OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: dataURI},
				}},
			},
		},
	}

	resp, err := rb.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       rb.model,
		Temperature: openai.Float(rb.temp),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{OfUser: &userMsg},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llmclient: vision caption call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llmclient: vision caption call: no choices returned")
	}
	content, _ := splitThink(resp.Choices[0].Message.Content)
	return content, nil
}

// fetchDataURI downloads url and returns it as a "data:<mime>;base64,..."
// URI via internal/encoding's base64 codec, the inline image format
// OpenAI-compatible vision endpoints accept alongside remote URLs.
func fetchDataURI(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch image: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", err
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}

	return "data:" + mime + ";base64," + encoding.StdBase64Data(body).String(), nil
}

package cdp

import (
	"context"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/page"

	"cdpjobstats/internal/logger"
)

// navigations 将主框架的跨文档导航与文档内导航（pushState、replaceState、popstate、hash）
// 合并为一个地址流，ctx 结束或连接关闭时关闭输出通道
func navigations(ctx context.Context, client *cdp.Client, l logger.Logger) (<-chan string, error) {
	tree, err := client.Page.GetFrameTree(ctx)
	if err != nil {
		return nil, err
	}
	mainFrame := tree.FrameTree.Frame.ID

	navigated, err := client.Page.FrameNavigated(ctx)
	if err != nil {
		return nil, err
	}
	within, err := client.Page.NavigatedWithinDocument(ctx)
	if err != nil {
		navigated.Close()
		return nil, err
	}
	if err := cdp.Sync(navigated, within); err != nil {
		navigated.Close()
		within.Close()
		return nil, err
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer navigated.Close()
		defer within.Close()

		emit := func(href string) bool {
			select {
			case out <- href:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-navigated.Ready():
				ev, err := navigated.Recv()
				if err != nil {
					l.Debug("导航事件流已关闭", "error", err.Error())
					return
				}
				if href, ok := mainFrameURL(mainFrame, ev); ok && !emit(href) {
					return
				}
			case <-within.Ready():
				ev, err := within.Recv()
				if err != nil {
					l.Debug("导航事件流已关闭", "error", err.Error())
					return
				}
				if href, ok := mainFrameURL(mainFrame, ev); ok && !emit(href) {
					return
				}
			}
		}
	}()
	return out, nil
}

// mainFrameURL 取出主框架导航事件的新地址，子框架与空地址返回 false
func mainFrameURL(main page.FrameID, ev any) (string, bool) {
	var frame page.FrameID
	var href string
	switch e := ev.(type) {
	case *page.FrameNavigatedReply:
		frame, href = e.Frame.ID, e.Frame.URL
	case *page.NavigatedWithinDocumentReply:
		frame, href = e.FrameID, e.URL
	default:
		return "", false
	}
	if frame != main || href == "" {
		return "", false
	}
	return href, true
}

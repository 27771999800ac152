package cdp

// mutationBinding 页面内结构变化通知使用的绑定名
const mutationBinding = "__jobStatsMutated"

// observerScript 在页面内监听整棵文档树的变化，每帧最多通知一次
const observerScript = `(() => {
  if (window.__jobStatsObserver) return;
  window.__jobStatsObserver = true;
  let scheduled = false;
  const notify = () => {
    scheduled = false;
    if (typeof window.` + mutationBinding + ` === 'function') {
      window.` + mutationBinding + `('');
    }
  };
  const start = () => {
    const mo = new MutationObserver(() => {
      if (scheduled) return;
      scheduled = true;
      requestAnimationFrame(notify);
    });
    mo.observe(document.documentElement, { childList: true, subtree: true });
  };
  if (document.documentElement) start();
  else document.addEventListener('DOMContentLoaded', start, { once: true });
})()`

// findAnchorScript 参数为选择器数组，返回第一个命中的选择器
const findAnchorScript = `((selectors) => {
  for (const s of selectors) {
    try {
      if (document.querySelector(s)) return s;
    } catch (e) {}
  }
  return '';
})(%s)`

// attachedScript 参数为徽章ID
const attachedScript = `((id) => {
  const el = document.getElementById(id);
  return !!(el && el.isConnected);
})(%s)`

// badgeHelpers 徽章渲染共用的函数体
const badgeHelpers = `
  const ensureStyle = () => {
    if (document.getElementById(` + "%[2]s" + `)) return;
    const style = document.createElement('style');
    style.id = ` + "%[2]s" + `;
    style.textContent = ` + "%[3]s" + `;
    (document.head || document.documentElement).appendChild(style);
  };
  const span = (cls, text) => {
    const el = document.createElement('span');
    el.className = cls;
    el.textContent = text;
    return el;
  };
  const fill = (wrap) => {
    wrap.replaceChildren(
      span(` + "%[4]s" + `, b.applies),
      span(` + "%[5]s" + `, b.sep),
      span(` + "%[4]s" + `, b.views)
    );
  };
`

// updateScript 徽章在文档中时原地更新内容，返回是否更新
const updateScript = `((b) => {` + badgeHelpers + `
  const wrap = document.getElementById(b.id);
  if (!wrap || !wrap.isConnected) return false;
  ensureStyle();
  fill(wrap);
  return true;
})(%[1]s)`

// insertScript 创建或复用徽章并插入到锚点之后
const insertScript = `((b, anchor) => {` + badgeHelpers + `
  const target = document.querySelector(anchor);
  if (!target) throw new Error('anchor not found: ' + anchor);
  ensureStyle();
  let wrap = document.getElementById(b.id);
  if (!wrap) {
    wrap = document.createElement('span');
    wrap.id = b.id;
    wrap.className = ` + "%[6]s" + `;
  }
  fill(wrap);
  if (target.nextElementSibling !== wrap) {
    target.insertAdjacentElement('afterend', wrap);
  }
})(%[1]s, %[7]s)`

// hrefScript 读取当前地址
const hrefScript = `location.href`

// publishScript 将一次响应发布到页面全局变量并派发事件，参数为响应JSON
const publishScript = `((r) => {
  window.__jobApiResponse = r;
  if (r.jobId) {
    window.__jobApiResponseByJobId = window.__jobApiResponseByJobId || {};
    window.__jobApiResponseByJobId[r.jobId] = r;
  }
  window.dispatchEvent(new CustomEvent('job-api-response', { detail: r }));
  return true;
})(%s)`

// pageAPIScript 在页面内提供 waitForJobApiResponse，读取已发布的响应或等待下一次匹配
const pageAPIScript = `(() => {
  if (window.waitForJobApiResponse) return;
  window.waitForJobApiResponse = (jobId, opts) => {
    opts = opts || {};
    const byId = window.__jobApiResponseByJobId || {};
    if (jobId === undefined) {
      const p = new URLSearchParams(location.search).get(` + "%s" + `);
      jobId = p || undefined;
    }
    const key = jobId === undefined || jobId === null || jobId === '' ? '*' : String(jobId);
    if (!opts.once && key !== '*' && byId[key]) return Promise.resolve(byId[key]);
    return new Promise((resolve) => {
      const onResponse = (e) => {
        const r = e.detail;
        if (key !== '*' && String(r.jobId) !== key) return;
        window.removeEventListener('job-api-response', onResponse);
        resolve(r);
      };
      window.addEventListener('job-api-response', onResponse);
    });
  };
})()`

package api

const protocolDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Agent Protocol — DevTools Bridge</title>
  <style>
    *, *::before, *::after { box-sizing: border-box; }

    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
      display: flex;
      flex-direction: column;
      min-height: 100vh;
    }

    a { color: #58a6ff; text-decoration: none; }
    a:hover { text-decoration: underline; }

    nav {
      background: #161b22;
      border-bottom: 1px solid #30363d;
      padding: 0 24px;
      height: 48px;
      display: flex;
      align-items: center;
      gap: 24px;
      flex-shrink: 0;
    }
    nav .brand { font-weight: 600; font-size: 15px; color: #e6edf3; }
    nav .sep { color: #484f58; }
    nav .current { color: #e6edf3; font-weight: 500; }
    nav .back { font-size: 13px; }

    .layout {
      display: flex;
      flex: 1;
      max-width: 1100px;
      width: 100%;
      margin: 0 auto;
      padding: 0 16px;
    }

    aside {
      width: 220px;
      flex-shrink: 0;
      padding: 32px 16px 32px 0;
      position: sticky;
      top: 0;
      height: calc(100vh - 48px);
      overflow-y: auto;
    }
    aside h4 {
      margin: 0 0 8px;
      font-size: 11px;
      font-weight: 600;
      text-transform: uppercase;
      letter-spacing: .08em;
      color: #8b949e;
    }
    aside ul { list-style: none; margin: 0 0 24px; padding: 0; }
    aside ul li a {
      display: block;
      padding: 4px 8px;
      border-radius: 4px;
      font-size: 13px;
      color: #8b949e;
    }
    aside ul li a:hover { background: #21262d; color: #c9d1d9; text-decoration: none; }

    main {
      flex: 1;
      padding: 32px 0 64px 32px;
      border-left: 1px solid #21262d;
      min-width: 0;
    }

    h1 { margin: 0 0 8px; font-size: 28px; font-weight: 600; color: #e6edf3; }
    .subtitle { color: #8b949e; margin: 0 0 36px; font-size: 15px; }
    h2 {
      margin: 40px 0 12px;
      font-size: 18px;
      font-weight: 600;
      color: #e6edf3;
      padding-bottom: 8px;
      border-bottom: 1px solid #21262d;
    }
    h3 { margin: 28px 0 10px; font-size: 15px; font-weight: 600; color: #e6edf3; }
    p { margin: 0 0 12px; }

    .endpoint {
      display: inline-flex;
      align-items: center;
      gap: 10px;
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
      padding: 10px 16px;
      margin-bottom: 20px;
      font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, monospace;
      font-size: 14px;
    }
    .method {
      background: #1f6feb;
      color: #fff;
      font-weight: 700;
      font-size: 11px;
      padding: 2px 7px;
      border-radius: 4px;
      letter-spacing: .04em;
    }
    .path { color: #e6edf3; }

    table {
      width: 100%;
      border-collapse: collapse;
      margin-bottom: 20px;
      font-size: 13px;
    }
    th {
      text-align: left;
      padding: 8px 12px;
      background: #161b22;
      color: #8b949e;
      font-weight: 600;
      border-bottom: 1px solid #30363d;
    }
    td { padding: 8px 12px; border-bottom: 1px solid #21262d; vertical-align: top; }
    tr:last-child td { border-bottom: none; }
    code {
      font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, monospace;
      font-size: 12px;
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 3px;
      padding: 1px 5px;
      color: #e6edf3;
    }

    pre {
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
      padding: 16px;
      overflow-x: auto;
      margin: 0 0 20px;
    }
    pre code {
      background: none;
      border: none;
      padding: 0;
      font-size: 13px;
      line-height: 1.6;
      color: #c9d1d9;
    }

    .callout {
      background: #161b22;
      border-left: 3px solid #1f6feb;
      border-radius: 0 6px 6px 0;
      padding: 12px 16px;
      margin-bottom: 20px;
      font-size: 13px;
    }
    .callout.warning { border-color: #d29922; }
    .callout strong { color: #e6edf3; }

    .sse-block {
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
      padding: 16px;
      margin-bottom: 20px;
      font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, monospace;
      font-size: 13px;
      line-height: 1.8;
    }
    .sse-key { color: #79c0ff; }
    .sse-value { color: #a5d6ff; }
    .sse-comment { color: #484f58; }
  </style>
</head>
<body>

<nav>
  <span class="brand">DevTools Bridge</span>
  <span class="sep">/</span>
  <span class="current">Agent Protocol</span>
  <a class="back" href="/docs">← REST API Docs</a>
</nav>

<div class="layout">

  <aside>
    <h4>On this page</h4>
    <ul>
      <li><a href="#overview">Overview</a></li>
      <li><a href="#discovery">Discovery</a></li>
      <li><a href="#handshake">Handshake</a></li>
      <li><a href="#heartbeat">Heartbeat</a></li>
      <li><a href="#commands">Commands &amp; Replies</a></li>
      <li><a href="#telemetry">Telemetry</a></li>
      <li><a href="#bounding">Payload Bounding</a></li>
      <li><a href="#relay">SSE Relay</a></li>
      <li><a href="#errors">Error Codes</a></li>
    </ul>
  </aside>

  <main>
    <h1>Agent Protocol</h1>
    <p class="subtitle">How browser agents connect to the bridge and how tool requests travel the wire.</p>

    <h2 id="overview">Overview</h2>
    <p>
      The bridge sits between stateless tool clients and a stateful browser agent
      (a devtools extension or inspector panel). Tool clients speak plain REST;
      the agent keeps one WebSocket open to the bridge and answers commands over it.
      Every frame in both directions is a JSON text message with a <code>type</code> tag.
    </p>
    <div class="callout">
      <strong>One active agent at a time.</strong> If several agents are connected,
      commands go to the most recently attached one. Older connections stay registered
      and keep streaming telemetry until they drop.
    </div>

    <h2 id="discovery">Discovery</h2>
    <div class="endpoint">
      <span class="method">GET</span>
      <span class="path">/.identity</span>
    </div>
    <p>
      Agents find the bridge by scanning candidate ports (8765&ndash;8774 by default)
      and requesting the identity document from each until one answers with the
      expected signature:
    </p>
    <pre><code>{
  "signature": "devtools-bridge-agent-24x7",
  "version": "1.2.0",
  "name": "devtools_bridge"
}</code></pre>

    <h2 id="handshake">Handshake</h2>
    <div class="endpoint">
      <span class="method">GET</span>
      <span class="path">/ws</span>
    </div>
    <p>
      After the WebSocket upgrade, the agent must send a handshake frame before
      anything else. A connection whose first frame is not a valid handshake is
      closed and never registered.
    </p>
    <pre><code>&rarr; {"type": "handshake", "signature": "devtools-bridge-agent-24x7", "version": "1.0.0"}
&larr; {"type": "handshake-response", "signature": "devtools-bridge-agent-24x7", "version": "1.2.0"}</code></pre>

    <h2 id="heartbeat">Heartbeat</h2>
    <p>
      The bridge sends <code>{"type": "heartbeat"}</code> every 30 seconds (configurable
      via <code>BRIDGE_HEARTBEAT_INTERVAL_MS</code>). The agent answers with
      <code>{"type": "heartbeat-response"}</code>. Any inbound frame counts as a sign of
      life; an agent silent for three full intervals is declared dead and dropped.
    </p>

    <h2 id="commands">Commands &amp; Replies</h2>
    <p>
      Tool requests become command frames. Operation fields sit at the top level
      next to <code>type</code> and <code>correlationId</code>:
    </p>
    <pre><code>&rarr; {"type": "take-screenshot", "correlationId": "8e6a…", "format": "png", "fullPage": false}
&larr; {"type": "take-screenshot-response", "correlationId": "8e6a…", "data": {"data": "iVBOR…"}}</code></pre>
    <p>
      A failure reply uses the <code>-error</code> suffix and carries a message instead:
    </p>
    <pre><code>&larr; {"type": "take-screenshot-error", "correlationId": "8e6a…", "error": "element detached"}</code></pre>
    <table>
      <thead>
        <tr><th>Command</th><th>Fields</th><th>Default reply budget</th></tr>
      </thead>
      <tbody>
        <tr><td><code>take-screenshot</code></td><td><code>format</code>, <code>quality</code>, <code>fullPage</code></td><td>10 s</td></tr>
        <tr><td><code>click-element</code></td><td><code>selector</code> or <code>x</code>/<code>y</code></td><td>5 s</td></tr>
        <tr><td><code>read-storage</code></td><td><code>kind</code> (cookies, local, session)</td><td>5 s</td></tr>
        <tr><td><code>navigate</code></td><td><code>url</code></td><td>15 s</td></tr>
      </tbody>
    </table>
    <div class="callout warning">
      <strong>Replies settle exactly once.</strong> Whichever of reply, timeout or
      connection loss happens first wins; a reply arriving after its request has
      already settled is logged and discarded.
    </div>

    <h2 id="telemetry">Telemetry</h2>
    <p>
      The agent may push unsolicited telemetry at any time. Frames carry the event
      payload under <code>data</code>:
    </p>
    <pre><code>&rarr; {"type": "console-error", "data": {"message": "TypeError: x is undefined"}}</code></pre>
    <table>
      <thead>
        <tr><th>Tag</th><th>Meaning</th></tr>
      </thead>
      <tbody>
        <tr><td><code>console-log</code></td><td>Console output below error severity</td></tr>
        <tr><td><code>console-error</code></td><td>Console errors and uncaught exceptions</td></tr>
        <tr><td><code>network-request</code></td><td>One completed or failed network exchange</td></tr>
        <tr><td><code>selected-element</code></td><td>Element picked in the inspector; only the latest is kept</td></tr>
        <tr><td><code>page-navigated</code></td><td>Page location change; updates the current URL</td></tr>
        <tr><td><code>telemetry-batch</code></td><td>Array of the above under <code>data</code>, delivered as one frame</td></tr>
      </tbody>
    </table>
    <pre><code>&rarr; {"type": "telemetry-batch", "data": [
    {"type": "console-log", "data": {"message": "ready"}},
    {"type": "network-request", "data": {"url": "/api/items", "status": 200}}
  ]}</code></pre>

    <h2 id="bounding">Payload Bounding</h2>
    <p>
      Telemetry payloads are bounded before they are stored or relayed, so a noisy
      page cannot exhaust the bridge:
    </p>
    <table>
      <thead>
        <tr><th>Rule</th><th>Behavior</th></tr>
      </thead>
      <tbody>
        <tr><td>String cap</td><td>Strings over the cap (default 500 chars) are cut and marked with <code>... (truncated)</code></td></tr>
        <tr><td>Depth ceiling</td><td>Nesting beyond 100 levels is replaced with <code>[max depth exceeded]</code></td></tr>
        <tr><td>Batch budget</td><td>Batches keep a prefix of items up to the byte budget (default 20000); the rest are dropped and counted</td></tr>
      </tbody>
    </table>

    <h2 id="relay">SSE Relay</h2>
    <div class="endpoint">
      <span class="method">GET</span>
      <span class="path">/api/v1/relay/events</span>
    </div>
    <p>
      When enabled (<code>BRIDGE_RELAY_ENABLED=true</code>), bounded telemetry is also
      fanned out live over Server-Sent Events. Channels group telemetry types; the
      mapping lives in <code>relay.yaml</code> (<code>BRIDGE_RELAY_CONFIG</code>).
    </p>
    <h3>Query Parameters</h3>
    <table>
      <thead>
        <tr><th>Name</th><th>Required</th><th>Description</th></tr>
      </thead>
      <tbody>
        <tr><td><code>channels</code></td><td>No</td><td>Comma-separated channel names; omit to receive every channel</td></tr>
      </tbody>
    </table>
    <div class="sse-block">
      <span class="sse-key">event:</span> <span class="sse-value">console</span><br>
      <span class="sse-key">data:</span> <span class="sse-value">{"type":"console-error","agent_id":"…","data":{…}}</span><br>
      <span class="sse-comment"># one block per event; slow subscribers have events dropped, not queued</span>
    </div>
    <pre><code># relay.yaml
channels:
  - name: console
    events: [console-log, console-error]
  - name: network
    events: [network-request]
  - name: page
    events: [page-navigated, selected-element]</code></pre>

    <h2 id="errors">Error Codes</h2>
    <p>Tool endpoints fail with a coded error mapped onto an HTTP status:</p>
    <table>
      <thead>
        <tr><th>Code</th><th>HTTP</th><th>Meaning</th></tr>
      </thead>
      <tbody>
        <tr><td><code>VALIDATION</code></td><td>400</td><td>Request arguments rejected before dispatch</td></tr>
        <tr><td><code>NO_CONNECTION</code></td><td>503</td><td>No agent connected</td></tr>
        <tr><td><code>CONNECTION_LOST</code></td><td>502</td><td>Agent dropped while the request was in flight</td></tr>
        <tr><td><code>AGENT_ERROR</code></td><td>502</td><td>Agent answered with an error reply</td></tr>
        <tr><td><code>TIMEOUT</code></td><td>504</td><td>No reply within the budget</td></tr>
        <tr><td><code>INTERNAL</code></td><td>500</td><td>Bridge-side failure</td></tr>
      </tbody>
    </table>

  </main>
</div>

</body>
</html>`

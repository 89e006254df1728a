package webjob

// Script members rendered into every package. Credentials are read
// from App Service settings at runtime; nothing secret is baked into
// the archive.
const scriptTemplates = `
{{define "run.py" -}}
#!/usr/bin/env python3
"""Upload watched documents to blob storage and refresh the search index.

WebJob: {{.JobName}} (agent: {{.AgentID}})
"""

import json
import os
import sys

import requests
from azure.storage.blob import BlobServiceClient


def load_config():
    here = os.path.dirname(os.path.abspath(__file__))
    with open(os.path.join(here, "config.json"), encoding="utf-8") as f:
        return json.load(f)


def upload_folder(cfg):
    conn = os.environ["AZURE_STORAGE_CONNECTION_STRING"]
    service = BlobServiceClient.from_connection_string(conn)
    container = service.get_container_client(cfg["container_name"])
    folder = cfg.get("watch_folder") or os.environ.get("WEBJOBS_DATA_PATH", ".")

    uploaded = 0
    for name in sorted(os.listdir(folder)):
        path = os.path.join(folder, name)
        if not os.path.isfile(path):
            continue
        with open(path, "rb") as f:
            container.upload_blob(name, f, overwrite=True)
        uploaded += 1
        print(f"uploaded {name}")
    return uploaded


def run_indexer(cfg):
    index = cfg.get("index_name")
    if not index:
        return
    endpoint = os.environ["AZURE_SEARCH_SERVICE_ENDPOINT"].rstrip("/")
    key = os.environ["AZURE_SEARCH_ADMIN_KEY"]
    resp = requests.post(
        f"{endpoint}/indexers/{index}-indexer/run?api-version=2023-11-01",
        headers={"api-key": key},
        timeout=30,
    )
    resp.raise_for_status()
    print(f"indexer {index}-indexer triggered")


def main():
    cfg = load_config()
    count = upload_folder(cfg)
    print(f"{count} file(s) uploaded to {cfg['container_name']}")
    if count:
        run_indexer(cfg)


if __name__ == "__main__":
    sys.exit(main())
{{end}}

{{define "run.sh" -}}
#!/bin/bash
set -euo pipefail
cd "$(dirname "$0")"
python3 run.py
{{end}}

{{define "run.cmd" -}}
@echo off
cd /d "%~dp0"
python run.py
{{end}}

{{define "requirements.txt" -}}
azure-storage-blob>=12.19.0
requests>=2.31.0
{{end}}

{{define "README.md" -}}
# {{.JobName}}

Azure WebJob for agent ` + "`{{.AgentID}}`" + `. Uploads documents from the
watch folder into the ` + "`{{.ContainerName}}`" + ` blob container{{if .IndexName}} and
triggers the ` + "`{{.IndexName}}-indexer`" + ` search indexer{{end}}.

## Deployment

1. Zip-deploy this folder as a {{if .Scheduled}}triggered (scheduled){{else}}continuous{{end}} WebJob.
2. Set the following App Service application settings:
   - ` + "`AZURE_STORAGE_CONNECTION_STRING`" + `
{{- if .IndexName}}
   - ` + "`AZURE_SEARCH_SERVICE_ENDPOINT`" + `
   - ` + "`AZURE_SEARCH_ADMIN_KEY`" + `
{{- end}}
{{- if .Scheduled}}

Runs on the CRON schedule ` + "`{{.Schedule}}`" + ` (see settings.job).
{{- end}}
{{end}}
`
